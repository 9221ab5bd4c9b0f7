package authority

import (
	"context"
	"strconv"
	"time"

	"github.com/odyssey-erp/authority/internal/admins"
	"github.com/odyssey-erp/authority/internal/options"
	"github.com/odyssey-erp/authority/internal/password"
	"github.com/odyssey-erp/authority/internal/rights"
	"github.com/odyssey-erp/authority/internal/shared"
)

// Administrators returns the cached records selected by filter, ordered by
// rights descending then id.
func (e *Engine) Administrators(ctx context.Context, filter admins.Filter) ([]admins.Record, error) {
	st, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return filter.Apply(st.all), nil
}

// Rights returns the catalog of version for display, highest bit first.
// A zero version selects the active one.
func (e *Engine) Rights(ctx context.Context, version rights.Version) ([]rights.Definition, error) {
	if version == 0 {
		v, err := e.Version(ctx)
		if err != nil {
			return nil, err
		}
		version = v
	}
	catalog, err := rights.Definitions(version)
	if err != nil {
		return nil, err
	}
	return catalog.Ordered(), nil
}

// PasswordNote describes the current password policy.
func (e *Engine) PasswordNote(ctx context.Context) (string, error) {
	minLength, pattern, err := e.policy(ctx)
	if err != nil {
		return "", err
	}
	return password.Describe(minLength, pattern), nil
}

// ValidatePassword checks plaintext against the policy as currently
// configured. Policy failures are returned as *password.PolicyViolation.
func (e *Engine) ValidatePassword(ctx context.Context, plaintext string) error {
	minLength, pattern, err := e.policy(ctx)
	if err != nil {
		return err
	}
	return password.Validate(plaintext, minLength, pattern)
}

// PasswordHash returns the stored digest form of a credential.
func (e *Engine) PasswordHash(ctx context.Context, username, plaintext string) (string, error) {
	salt, err := e.salt(ctx)
	if err != nil {
		return "", err
	}
	return password.Hash(username, plaintext, salt), nil
}

// SetPassword validates plaintext and stores its digest on admin. The
// administrator still has to be saved.
func (e *Engine) SetPassword(ctx context.Context, admin *admins.Administrator, plaintext string) error {
	if err := e.ValidatePassword(ctx, plaintext); err != nil {
		return err
	}
	digest, err := e.PasswordHash(ctx, admin.Username, plaintext)
	if err != nil {
		return err
	}
	admin.PasswordHash = digest
	return nil
}

// AdminEmails maps display names to the addresses of users holding any bit
// of mask. A zero mask selects admin rights. Users without a name are
// listed by username; invalid addresses are skipped.
func (e *Engine) AdminEmails(ctx context.Context, mask rights.Mask) (map[string]string, error) {
	if mask == 0 {
		catalog, err := e.catalog(ctx)
		if err != nil {
			return nil, err
		}
		mask = catalog.Admin()
	}
	records, err := e.Administrators(ctx, admins.FilterUsers)
	if err != nil {
		return nil, err
	}
	emails := make(map[string]string)
	for _, rec := range records {
		if !rec.Rights.HasAny(mask) {
			continue
		}
		if e.validate.Var(rec.Email, "required,email") != nil {
			continue
		}
		name := rec.Name
		if name == "" {
			name = rec.Username
		}
		emails[name] = rec.Email
	}
	return emails, nil
}

// SaveAdministrator stores admin and refreshes the cache. actorID names
// the administrator performing the change for the audit trail.
func (e *Engine) SaveAdministrator(ctx context.Context, admin *admins.Administrator, actorID int64) error {
	defer e.Invalidate()
	if err := admin.Save(ctx); err != nil {
		return err
	}
	e.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "administrator.save",
		Entity:   "administrator",
		EntityID: strconv.FormatInt(admin.ID, 10),
		Meta:     map[string]any{"user": admin.Username, "rights": uint64(admin.Record.Rights), "valid": admin.Valid},
	})
	return nil
}

// RemoveAdministrator deletes admin and refreshes the cache.
func (e *Engine) RemoveAdministrator(ctx context.Context, admin *admins.Administrator, actorID int64) error {
	defer e.Invalidate()
	id := admin.ID
	if err := admin.Remove(ctx); err != nil {
		return err
	}
	e.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "administrator.remove",
		Entity:   "administrator",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"user": admin.Username},
	})
	return nil
}

// MarkRightsReset ends the bootstrap period in which every request is
// granted admin rights.
func (e *Engine) MarkRightsReset(ctx context.Context) error {
	return e.options.Set(ctx, options.KeyResetDate, time.Now().UTC().Format(time.RFC3339))
}
