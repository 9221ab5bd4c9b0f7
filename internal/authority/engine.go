// Package authority decides who may administer the gallery. It verifies
// logons and stored credential digests, keeps a master user fully
// privileged, and migrates stored rights between schema versions.
package authority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/authority/internal/admins"
	"github.com/odyssey-erp/authority/internal/options"
	"github.com/odyssey-erp/authority/internal/password"
	"github.com/odyssey-erp/authority/internal/rights"
	"github.com/odyssey-erp/authority/internal/shared"
)

var (
	// ErrUnsupportedMigration rejects migration targets without a rights table.
	ErrUnsupportedMigration = errors.New("authority: unsupported migration")
	// ErrPartialMigration reports that some records kept their old rights.
	ErrPartialMigration = errors.New("authority: migration partially failed")
)

// Auditor records administrative changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Defaults seed the password policy of a fresh installation.
type Defaults struct {
	MinPasswordLength int
	PasswordPattern   string
	PreferredVersion  rights.Version
}

// Option customises an Engine.
type Option func(*Engine)

// WithAuditor records saves, removals and migrations.
func WithAuditor(a Auditor) Option {
	return func(e *Engine) { e.audit = a }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithDefaults overrides the policy used by EnsureDefaults.
func WithDefaults(d Defaults) Option {
	return func(e *Engine) { e.defaults = d }
}

// Engine is the authority for one process. It caches the administrator
// list until Invalidate is called, either by its own writes or when another
// process sharing the store announces a change.
type Engine struct {
	store    admins.Store
	resolver admins.ObjectResolver
	options  options.Store
	logger   *slog.Logger
	audit    Auditor
	metrics  *Metrics
	defaults Defaults
	validate *validator.Validate

	loads singleflight.Group
	mu    sync.Mutex
	state *state
	gen   uint64
}

type state struct {
	all    []admins.Record
	master string
}

// New constructs an Engine.
func New(store admins.Store, resolver admins.ObjectResolver, settings options.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:    store,
		resolver: resolver,
		options:  settings,
		logger:   logger,
		validate: validator.New(),
		defaults: Defaults{
			MinPasswordLength: password.DefaultMinLength,
			PasswordPattern:   password.DefaultCharacterGroups,
			PreferredVersion:  rights.PreferredVersion,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if !e.defaults.PreferredVersion.Supported() {
		e.defaults.PreferredVersion = rights.PreferredVersion
	}
	return e
}

// EnsureDefaults stores the salt and password policy unless already set.
// The salt is generated once; replacing it would invalidate every stored
// password.
func (e *Engine) EnsureDefaults(ctx context.Context) error {
	salt, err := password.GenerateSalt()
	if err != nil {
		return err
	}
	if err := e.options.SetDefault(ctx, options.KeySalt, salt); err != nil {
		return err
	}
	if err := e.options.SetDefault(ctx, options.KeyMinLength, strconv.Itoa(e.defaults.MinPasswordLength)); err != nil {
		return err
	}
	return e.options.SetDefault(ctx, options.KeyPattern, e.defaults.PasswordPattern)
}

// Version returns the active rights schema version.
func (e *Engine) Version(ctx context.Context) (rights.Version, error) {
	preferred := int(e.defaults.PreferredVersion)
	n, err := options.Int(ctx, e.options, options.KeyRightsVersion, preferred)
	if err != nil {
		return 0, err
	}
	v := rights.Version(n)
	if !v.Supported() {
		e.logger.Warn("stored rights version unsupported", slog.Int("version", n))
		return rights.Version(preferred), nil
	}
	return v, nil
}

// Catalog returns the rights table of the active version.
func (e *Engine) Catalog(ctx context.Context) (rights.Catalog, error) {
	return e.catalog(ctx)
}

func (e *Engine) catalog(ctx context.Context) (rights.Catalog, error) {
	v, err := e.Version(ctx)
	if err != nil {
		return nil, err
	}
	return rights.Definitions(v)
}

// Invalidate drops the cached administrator list and master snapshot.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.state = nil
	e.gen++
	e.mu.Unlock()
}

func (e *Engine) snapshot(ctx context.Context) (*state, error) {
	e.mu.Lock()
	st, gen := e.state, e.gen
	e.mu.Unlock()
	if st != nil {
		return st, nil
	}
	// The load is shared by every waiting caller, so it must outlive the
	// request that happened to start it.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := e.loads.Do("administrators", func() (any, error) {
		records, err := e.store.ListAll(loadCtx)
		if err != nil {
			return nil, err
		}
		st := &state{all: records}
		// Records arrive by rights descending, id ascending: the first
		// valid one is the most privileged user.
		for _, rec := range records {
			if rec.Valid {
				st.master = rec.Username
				break
			}
		}
		e.mu.Lock()
		if e.gen == gen {
			e.state = st
		}
		e.mu.Unlock()
		return st, nil
	})
	if err != nil {
		return nil, fmt.Errorf("authority: load administrators: %w", err)
	}
	return v.(*state), nil
}

// wrap builds the administrator object, promoting the master user.
func (e *Engine) wrap(st *state, rec admins.Record, transient bool, catalog rights.Catalog) *admins.Administrator {
	admin := admins.NewAdministrator(e.store, e.resolver, rec, transient)
	if rec.Valid && st.master != "" && rec.Username == st.master {
		admin.Promote(catalog.Admin())
	}
	return admin
}

func (e *Engine) salt(ctx context.Context) (string, error) {
	salt, err := e.options.Get(ctx, options.KeySalt)
	if err != nil || salt != "" {
		return salt, err
	}
	if err := e.EnsureDefaults(ctx); err != nil {
		return "", err
	}
	return e.options.Get(ctx, options.KeySalt)
}

func (e *Engine) policy(ctx context.Context) (int, string, error) {
	minLength, err := options.Int(ctx, e.options, options.KeyMinLength, e.defaults.MinPasswordLength)
	if err != nil {
		return 0, "", err
	}
	pattern, err := e.options.Get(ctx, options.KeyPattern)
	if err != nil {
		return 0, "", err
	}
	return minLength, pattern, nil
}

func (e *Engine) record(ctx context.Context, log shared.AuditLog) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, log); err != nil {
		e.logger.Warn("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}
