// Package authorityhttp exposes logon and administrator management over
// JSON.
package authorityhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/authority/internal/admins"
	"github.com/odyssey-erp/authority/internal/authority"
	"github.com/odyssey-erp/authority/internal/password"
	"github.com/odyssey-erp/authority/internal/platform/httpx"
	"github.com/odyssey-erp/authority/internal/rbac"
	"github.com/odyssey-erp/authority/internal/rights"
	"github.com/odyssey-erp/authority/internal/shared"
	"github.com/odyssey-erp/authority/jobs"
)

// MigrationQueue schedules rights migrations.
type MigrationQueue interface {
	EnqueueRightsMigration(ctx context.Context, to rights.Version, actorID int64) (string, error)
}

// Handler wires HTTP endpoints for logons and administrator management.
type Handler struct {
	logger     *slog.Logger
	engine     *authority.Engine
	sessions   *shared.SessionManager
	queue      MigrationQueue
	rbac       rbac.Middleware
	validator  *validator.Validate
	logonLimit int
}

// Config collects Handler dependencies.
type Config struct {
	Logger   *slog.Logger
	Engine   *authority.Engine
	Sessions *shared.SessionManager
	Queue    MigrationQueue
	// LogonLimit caps logon attempts per client IP and minute.
	LogonLimit int
}

// NewHandler constructs a Handler instance.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.LogonLimit
	if limit <= 0 {
		limit = 10
	}
	return &Handler{
		logger:     logger,
		engine:     cfg.Engine,
		sessions:   cfg.Sessions,
		queue:      cfg.Queue,
		rbac:       rbac.Middleware{Catalogs: cfg.Engine, Logger: logger},
		validator:  validator.New(),
		logonLimit: limit,
	}
}

// MountAuthRoutes registers logon routes, e.g. under /auth.
func (h *Handler) MountAuthRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(h.logonLimit, time.Minute)).Post("/logon", h.handleLogon)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

// MountAdminRoutes registers administrator management, e.g. under /admin.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rights.KeyAdmin))
		r.Get("/administrators", h.listAdministrators)
		r.Put("/administrators/{username}", h.saveAdministrator)
		r.Delete("/administrators/{username}", h.removeAdministrator)
		r.Get("/rights/{version}", h.listRights)
		r.Get("/password-note", h.passwordNote)
		r.Get("/emails", h.adminEmails)
		r.Post("/rights/migrate", h.migrateRights)
		r.Post("/rights/reset", h.markReset)
	})
}

type logonRequest struct {
	Username   string `json:"username" validate:"required,max=255"`
	Password   string `json:"password" validate:"required,max=1024"`
	AdminLogin bool   `json:"admin_login"`
}

type identityResponse struct {
	User          string   `json:"user,omitempty"`
	Rights        uint64   `json:"rights"`
	Keys          []string `json:"keys"`
	Master        bool     `json:"master"`
	Authenticated bool     `json:"authenticated"`
}

func (h *Handler) handleLogon(w http.ResponseWriter, r *http.Request) {
	var req logonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	auth, err := h.engine.CheckLogon(r.Context(), req.Username, req.Password, req.AdminLogin)
	if err != nil {
		h.fail(w, "logon", err)
		return
	}
	// Bootstrap grants rights without naming the administrator, so success
	// rests on the verified credential.
	if auth.Credential == "" || auth.Rights == 0 {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrUnauthorized, shared.ErrInvalidCredentials))
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during logon")
		httpx.RespondError(w, errors.New("session missing"))
		return
	}
	h.sessions.Renew(sess)
	var userID string
	if auth.Admin != nil {
		userID = strconv.FormatInt(auth.Admin.ID, 10)
	}
	sess.SetUser(userID, auth.Credential)

	resp, err := h.identity(r.Context(), auth)
	if err != nil {
		h.fail(w, "logon", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessions.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	resp, err := h.identity(r.Context(), authority.AuthorizationFromContext(r.Context()))
	if err != nil {
		h.fail(w, "me", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) identity(ctx context.Context, auth authority.Authorization) (identityResponse, error) {
	catalog, err := h.engine.Catalog(ctx)
	if err != nil {
		return identityResponse{}, err
	}
	resp := identityResponse{
		Rights:        uint64(auth.Rights),
		Keys:          catalog.Keys(auth.Rights),
		Authenticated: auth.Authenticated(),
	}
	if resp.Keys == nil {
		resp.Keys = []string{}
	}
	if auth.Admin != nil {
		resp.User = auth.Admin.Username
		resp.Master = auth.Admin.Master()
	}
	return resp, nil
}

type administratorResponse struct {
	ID     int64    `json:"id"`
	User   string   `json:"user"`
	Name   string   `json:"name,omitempty"`
	Email  string   `json:"email,omitempty"`
	Rights uint64   `json:"rights"`
	Keys   []string `json:"keys"`
	Valid  bool     `json:"valid"`
	Group  string   `json:"group,omitempty"`
}

func (h *Handler) listAdministrators(w http.ResponseWriter, r *http.Request) {
	filter := admins.Filter(r.URL.Query().Get("filter"))
	switch filter {
	case "":
		filter = admins.FilterAll
	case admins.FilterAll, admins.FilterUsers, admins.FilterGroups:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "filter must be all, users or groups")
		return
	}
	records, err := h.engine.Administrators(r.Context(), filter)
	if err != nil {
		h.fail(w, "list administrators", err)
		return
	}
	catalog, err := h.engine.Catalog(r.Context())
	if err != nil {
		h.fail(w, "list administrators", err)
		return
	}
	out := make([]administratorResponse, 0, len(records))
	for _, rec := range records {
		keys := catalog.Keys(rec.Rights)
		if keys == nil {
			keys = []string{}
		}
		out = append(out, administratorResponse{
			ID:     rec.ID,
			User:   rec.Username,
			Name:   rec.Name,
			Email:  rec.Email,
			Rights: uint64(rec.Rights),
			Keys:   keys,
			Valid:  rec.Valid,
			Group:  rec.Group,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type objectRequest struct {
	Type admins.ObjectType `json:"type" validate:"required,oneof=album pages news"`
	Ref  string            `json:"ref" validate:"required"`
	Edit int               `json:"edit" validate:"gte=0"`
}

type saveRequest struct {
	Name     string          `json:"name" validate:"max=255"`
	Email    string          `json:"email" validate:"omitempty,email"`
	Password string          `json:"password"`
	Rights   []string        `json:"rights"`
	Group    string          `json:"group"`
	Valid    *bool           `json:"valid"`
	Objects  []objectRequest `json:"objects" validate:"dive"`
}

func (h *Handler) saveAdministrator(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	ctx := r.Context()
	catalog, err := h.engine.Catalog(ctx)
	if err != nil {
		h.fail(w, "save administrator", err)
		return
	}
	mask, err := resolveKeys(catalog, req.Rights)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	valid := req.Valid == nil || *req.Valid
	admin, err := h.engine.NewAdministrator(ctx, chi.URLParam(r, "username"), valid)
	if err != nil {
		h.fail(w, "save administrator", err)
		return
	}
	if admin.Transient() && valid && req.Password == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "password required for new users")
		return
	}
	if req.Password != "" {
		if err := h.engine.SetPassword(ctx, admin, req.Password); err != nil {
			var violation *password.PolicyViolation
			if errors.As(err, &violation) {
				httpx.Problem(w, http.StatusUnprocessableEntity, "Password Rejected", violation.Message)
				return
			}
			h.fail(w, "save administrator", err)
			return
		}
	}
	admin.Name = req.Name
	admin.Email = req.Email
	admin.Group = req.Group
	admin.SetRights(mask)
	if req.Objects != nil {
		objects := make([]admins.ManagedObject, 0, len(req.Objects))
		for _, o := range req.Objects {
			objects = append(objects, admins.ManagedObject{Type: o.Type, Ref: o.Ref, Edit: o.Edit})
		}
		admin.SetObjects(objects)
	}

	status := http.StatusOK
	if admin.Transient() {
		status = http.StatusCreated
	}
	if err := h.engine.SaveAdministrator(ctx, admin, actorID(r)); err != nil {
		h.fail(w, "save administrator", err)
		return
	}
	httpx.JSON(w, status, administratorResponse{
		ID:     admin.ID,
		User:   admin.Username,
		Name:   admin.Name,
		Email:  admin.Email,
		Rights: uint64(admin.Record.Rights),
		Keys:   catalog.Keys(admin.Record.Rights),
		Valid:  admin.Valid,
		Group:  admin.Group,
	})
}

func (h *Handler) removeAdministrator(w http.ResponseWriter, r *http.Request) {
	valid := r.URL.Query().Get("group") == ""
	admin, err := h.engine.NewAdministrator(r.Context(), chi.URLParam(r, "username"), valid)
	if err != nil {
		h.fail(w, "remove administrator", err)
		return
	}
	if err := h.engine.RemoveAdministrator(r.Context(), admin, actorID(r)); err != nil {
		if errors.Is(err, admins.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.fail(w, "remove administrator", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rightResponse struct {
	Key   string `json:"key"`
	Value uint64 `json:"value"`
	Name  string `json:"name"`
	Group string `json:"group,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

func (h *Handler) listRights(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "version")
	var version rights.Version
	if raw != "current" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "version must be a number or current")
			return
		}
		version = rights.Version(n)
		if !version.Supported() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", rights.ErrUnsupportedVersion.Error())
			return
		}
	}
	defs, err := h.engine.Rights(r.Context(), version)
	if err != nil {
		h.fail(w, "list rights", err)
		return
	}
	out := make([]rightResponse, 0, len(defs))
	for _, d := range defs {
		if !d.Visible {
			continue
		}
		out = append(out, rightResponse{Key: d.Key, Value: uint64(d.Value), Name: d.Name, Group: d.Group, Hint: d.Hint})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) passwordNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.engine.PasswordNote(r.Context())
	if err != nil {
		h.fail(w, "password note", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"note": note})
}

func (h *Handler) adminEmails(w http.ResponseWriter, r *http.Request) {
	var mask rights.Mask
	if raw := r.URL.Query().Get("rights"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rights must be an unsigned integer")
			return
		}
		mask = rights.Mask(n)
	}
	emails, err := h.engine.AdminEmails(r.Context(), mask)
	if err != nil {
		h.fail(w, "admin emails", err)
		return
	}
	httpx.JSON(w, http.StatusOK, emails)
}

type migrateRequest struct {
	To int `json:"to" validate:"required"`
}

func (h *Handler) migrateRights(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	to := rights.Version(req.To)
	if !to.Supported() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", authority.ErrUnsupportedMigration.Error())
		return
	}
	if h.queue == nil {
		httpx.RespondError(w, fmt.Errorf("%w: migration queue not configured", httpx.ErrUnavailable))
		return
	}
	id, err := h.queue.EnqueueRightsMigration(r.Context(), to, actorID(r))
	if err != nil {
		if errors.Is(err, jobs.ErrMigrationPending) {
			httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrDuplicate, err))
			return
		}
		h.fail(w, "enqueue migration", err)
		return
	}
	h.logger.Info("rights migration queued", slog.String("task_id", id), slog.Int("to", int(to)))
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

func (h *Handler) markReset(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.MarkRightsReset(r.Context()); err != nil {
		h.fail(w, "mark rights reset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

// resolveKeys turns right keys into a mask of the active catalog.
func resolveKeys(catalog rights.Catalog, keys []string) (rights.Mask, error) {
	var mask rights.Mask
	for _, key := range keys {
		one, known := rbac.Requirement{key}.Mask(catalog)
		if !known {
			return 0, fmt.Errorf("%w: unknown right %q", httpx.ErrValidation, key)
		}
		mask |= one
	}
	return mask, nil
}

func actorID(r *http.Request) int64 {
	if auth := authority.AuthorizationFromContext(r.Context()); auth.Admin != nil {
		return auth.Admin.ID
	}
	return 0
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	return fmt.Sprintf("%s failed %s", verrs[0].Field(), verrs[0].Tag())
}
