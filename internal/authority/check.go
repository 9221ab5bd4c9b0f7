package authority

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/odyssey-erp/authority/internal/admins"
	"github.com/odyssey-erp/authority/internal/options"
	"github.com/odyssey-erp/authority/internal/password"
	"github.com/odyssey-erp/authority/internal/rights"
)

// Authorization is the outcome of a credential check. Admin is the
// administrator the credential belongs to; it is nil whenever no stored
// administrator matched, including the bootstrap path. Credential is the
// digest verified by CheckLogon and stays set when bootstrap hides Admin.
type Authorization struct {
	Rights     rights.Mask
	Admin      *admins.Administrator
	Credential string
}

// Authenticated reports whether a stored administrator matched.
func (a Authorization) Authenticated() bool {
	return a.Admin != nil
}

// CheckAuthorization returns the rights granted to a stored credential
// digest. While no administrator exists, or before the rights reset marker
// has been set, everyone receives full admin rights so the installation
// can never be locked out. An empty digest never matches.
func (e *Engine) CheckAuthorization(ctx context.Context, digest string) (Authorization, error) {
	st, err := e.snapshot(ctx)
	if err != nil {
		return Authorization{}, err
	}
	catalog, err := e.catalog(ctx)
	if err != nil {
		return Authorization{}, err
	}
	reset, err := e.options.Get(ctx, options.KeyResetDate)
	if err != nil {
		return Authorization{}, err
	}
	if len(st.all) == 0 || reset == "" {
		e.metrics.authorization(outcomeBootstrap)
		e.logger.Debug("authorization bootstrap", slog.Int("administrators", len(st.all)), slog.Bool("reset", reset != ""))
		return Authorization{Rights: catalog.Admin()}, nil
	}
	if digest == "" {
		e.metrics.authorization(outcomeNoMatch)
		return Authorization{}, nil
	}

	rec, err := e.store.FindOne(ctx, admins.Criteria{PasswordHash: digest, ValidOnly: true})
	if err != nil {
		if errors.Is(err, admins.ErrNotFound) {
			e.metrics.authorization(outcomeNoMatch)
			return Authorization{}, nil
		}
		return Authorization{}, err
	}
	admin := e.wrap(st, rec, false, catalog)
	e.metrics.authorization(outcomeMatch)
	return Authorization{Rights: admin.Rights(), Admin: admin}, nil
}

// CheckLogon verifies a username and password. The final rights come from
// CheckAuthorization so master promotion and the bootstrap path apply.
// adminLogin distinguishes backend logons from guest logons checked for
// admin credentials; both are verified the same way.
func (e *Engine) CheckLogon(ctx context.Context, username, plaintext string, adminLogin bool) (Authorization, error) {
	salt, err := e.salt(ctx)
	if err != nil {
		return Authorization{}, err
	}
	digest := password.Hash(username, plaintext, salt)
	st, err := e.snapshot(ctx)
	if err != nil {
		return Authorization{}, err
	}
	for _, rec := range st.all {
		if !rec.Valid || rec.Username != username {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(rec.PasswordHash), []byte(digest)) != 1 {
			continue
		}
		auth, err := e.CheckAuthorization(ctx, digest)
		if err != nil {
			return Authorization{}, err
		}
		auth.Credential = digest
		e.metrics.logon(auth.Rights != 0)
		e.logger.Info("logon", slog.String("user", username), slog.Bool("admin_login", adminLogin), slog.Bool("master", auth.Admin != nil && auth.Admin.Master()))
		return auth, nil
	}
	e.metrics.logon(false)
	e.logger.Info("logon rejected", slog.String("user", username), slog.Bool("admin_login", adminLogin))
	return Authorization{}, nil
}

// NewAdministrator loads the user (valid) or group (not valid) named
// username, or returns a transient one when none is stored. A valid
// administrator whose name is the master user always carries the admin bit.
func (e *Engine) NewAdministrator(ctx context.Context, username string, valid bool) (*admins.Administrator, error) {
	st, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := e.catalog(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := e.store.FindOne(ctx, admins.Criteria{Username: username, ValidOnly: valid, GroupsOnly: !valid})
	transient := false
	switch {
	case errors.Is(err, admins.ErrNotFound):
		rec = admins.Record{Username: username, Valid: valid}
		transient = true
	case err != nil:
		return nil, err
	}
	return e.wrap(st, rec, transient, catalog), nil
}

// Master returns the username of the master user, or "" without users.
func (e *Engine) Master(ctx context.Context) (string, error) {
	st, err := e.snapshot(ctx)
	if err != nil {
		return "", err
	}
	return st.master, nil
}
