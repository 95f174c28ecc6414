package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"listing_syndicator/internal/fault"
)

// Validator performs a remote credential validation call against the
// Partner.
type Validator interface {
	ValidateCredentials(ctx context.Context) error
}

// Guard is the pre-flight credential gate. A bulk run is never attempted
// with credentials the guard has not accepted. Remote validation results
// are cached for a short TTL to keep repeated runs cheap.
type Guard struct {
	store     *Store
	validator Validator
	ttl       time.Duration
	logger    *slog.Logger

	mu            sync.Mutex
	lastValidated time.Time
}

func NewGuard(store *Store, validator Validator, ttl time.Duration, logger *slog.Logger) *Guard {
	return &Guard{
		store:     store,
		validator: validator,
		ttl:       ttl,
		logger:    logger.With("component", "credential_guard"),
	}
}

// Check returns nil when the stored credentials are current. The returned
// fault distinguishes never-configured from expired because the caller
// surfaces different remediation text for each.
func (g *Guard) Check(ctx context.Context) error {
	creds, ok := g.store.Current()
	if !ok {
		return fault.New(fault.KindCredentialInvalid, fault.CodeCredentialsMissing,
			"partner credentials are not configured")
	}
	if !creds.ExpiresAt.IsZero() && time.Now().After(creds.ExpiresAt) {
		g.store.Invalidate()
		return fault.New(fault.KindCredentialInvalid, fault.CodeCredentialsExpired,
			"partner credentials have expired")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.lastValidated.IsZero() && time.Since(g.lastValidated) < g.ttl {
		return nil
	}

	if err := g.validator.ValidateCredentials(ctx); err != nil {
		if fault.IsKind(err, fault.KindCredentialInvalid) {
			g.store.Invalidate()
			g.lastValidated = time.Time{}
			return fault.New(fault.KindCredentialInvalid, fault.CodeCredentialsExpired,
				"partner rejected the stored credentials")
		}
		return fmt.Errorf("validate credentials: %w", err)
	}

	g.lastValidated = time.Now()
	g.logger.Debug("credentials validated", "account_id", creds.AccountID)
	return nil
}
