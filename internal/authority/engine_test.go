package authority_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/authority/internal/admins"
	"github.com/odyssey-erp/authority/internal/admins/adminstest"
	"github.com/odyssey-erp/authority/internal/authority"
	"github.com/odyssey-erp/authority/internal/options"
	"github.com/odyssey-erp/authority/internal/options/optionstest"
	"github.com/odyssey-erp/authority/internal/password"
	"github.com/odyssey-erp/authority/internal/rights"
	"github.com/odyssey-erp/authority/internal/shared"
)

const testSalt = "pepper"

var v3 = rights.MustDefinitions(3)

type recordingAuditor struct {
	logs []shared.AuditLog
}

func (a *recordingAuditor) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type fixture struct {
	store   *adminstest.Store
	options *optionstest.Store
	audit   *recordingAuditor
	engine  *authority.Engine
}

func newFixture(t *testing.T, values map[string]string) fixture {
	t.Helper()
	seed := map[string]string{
		options.KeySalt:          testSalt,
		options.KeyRightsVersion: "3",
		options.KeyResetDate:     "2024-01-01T00:00:00Z",
	}
	for k, v := range values {
		seed[k] = v
	}
	f := fixture{
		store:   adminstest.NewStore(),
		options: optionstest.NewStore(seed),
		audit:   &recordingAuditor{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = authority.New(f.store, f.store, f.options, logger, authority.WithAuditor(f.audit))
	return f
}

func (f fixture) addUser(username, plaintext string, mask rights.Mask) int64 {
	return f.store.Add(admins.Record{
		Username:     username,
		PasswordHash: password.Hash(username, plaintext, testSalt),
		Rights:       mask,
		Valid:        true,
		Email:        username + "@example.com",
	})
}

func TestCheckAuthorizationBootstrapWithoutAdministrators(t *testing.T) {
	f := newFixture(t, nil)

	auth, err := f.engine.CheckAuthorization(context.Background(), "anything")
	require.NoError(t, err)
	require.Equal(t, v3.Admin(), auth.Rights)
	require.False(t, auth.Authenticated())
}

func TestCheckAuthorizationBootstrapWithoutResetMarker(t *testing.T) {
	f := newFixture(t, map[string]string{options.KeyResetDate: ""})
	f.addUser("alice", "secret1", v3.Value(rights.KeyUpload))

	auth, err := f.engine.CheckAuthorization(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, v3.Admin(), auth.Rights)
}

func TestCheckAuthorizationEmptyDigestNeverMatches(t *testing.T) {
	f := newFixture(t, nil)
	f.store.Add(admins.Record{Username: "blank", Valid: true, Rights: v3.Admin()})

	auth, err := f.engine.CheckAuthorization(context.Background(), "")
	require.NoError(t, err)
	require.Zero(t, auth.Rights)
	require.Nil(t, auth.Admin)
}

func TestCheckAuthorizationMatchesValidDigest(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser("root", "rootpw1", v3.Admin())
	upload := v3.Value(rights.KeyUpload)
	f.addUser("alice", "secret1", upload)

	auth, err := f.engine.CheckAuthorization(context.Background(), password.Hash("alice", "secret1", testSalt))
	require.NoError(t, err)
	require.Equal(t, upload, auth.Rights)
	require.Equal(t, "alice", auth.Admin.Username)
	require.False(t, auth.Admin.Master())

	auth, err = f.engine.CheckAuthorization(context.Background(), "unknown")
	require.NoError(t, err)
	require.Zero(t, auth.Rights)
}

func TestCheckAuthorizationIgnoresGroups(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser("root", "rootpw1", v3.Admin())
	f.store.Add(admins.Record{Username: "editors", PasswordHash: "group-digest", Rights: v3.Value(rights.KeyAlbum)})

	auth, err := f.engine.CheckAuthorization(context.Background(), "group-digest")
	require.NoError(t, err)
	require.Zero(t, auth.Rights)
}

func TestMasterUserIsPromoted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	// The first user by rights ordering is the master even after losing
	// the admin bit in storage.
	f.addUser("owner", "ownerpw", v3.Value(rights.KeyOptions)|v3.Value(rights.KeyThemes))
	f.addUser("helper", "helperpw", v3.Value(rights.KeyUpload))

	master, err := f.engine.Master(ctx)
	require.NoError(t, err)
	require.Equal(t, "owner", master)

	admin, err := f.engine.NewAdministrator(ctx, "owner", true)
	require.NoError(t, err)
	require.True(t, admin.Master())
	require.True(t, admin.Rights().Has(v3.Admin()))
	require.False(t, admin.Record.Rights.Has(v3.Admin()))

	auth, err := f.engine.CheckLogon(ctx, "owner", "ownerpw", true)
	require.NoError(t, err)
	require.True(t, auth.Rights.Has(v3.Admin()))

	helper, err := f.engine.NewAdministrator(ctx, "helper", true)
	require.NoError(t, err)
	require.False(t, helper.Master())
	require.Equal(t, v3.Value(rights.KeyUpload), helper.Rights())
}

func TestNewAdministratorTransientWhenMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addUser("root", "rootpw1", v3.Admin())
	f.store.Add(admins.Record{Username: "editors", Rights: v3.Value(rights.KeyAlbum)})

	admin, err := f.engine.NewAdministrator(ctx, "ghost", true)
	require.NoError(t, err)
	require.True(t, admin.Transient())
	require.Equal(t, "ghost", admin.Username)
	require.True(t, admin.Valid)

	// Groups are looked up separately from users of the same name.
	group, err := f.engine.NewAdministrator(ctx, "editors", false)
	require.NoError(t, err)
	require.False(t, group.Transient())

	user, err := f.engine.NewAdministrator(ctx, "editors", true)
	require.NoError(t, err)
	require.True(t, user.Transient())
}

func TestCheckLogon(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	f := newFixture(t, nil)
	metrics := authority.NewMetrics(reg)
	engine := authority.New(f.store, f.store, f.options, nil, authority.WithMetrics(metrics))
	f.addUser("root", "rootpw1", v3.Admin())
	f.addUser("alice", "secret1", v3.Value(rights.KeyUpload))

	auth, err := engine.CheckLogon(ctx, "alice", "secret1", false)
	require.NoError(t, err)
	require.Equal(t, v3.Value(rights.KeyUpload), auth.Rights)

	auth, err = engine.CheckLogon(ctx, "alice", "wrong", false)
	require.NoError(t, err)
	require.Zero(t, auth.Rights)

	auth, err = engine.CheckLogon(ctx, "nobody", "secret1", true)
	require.NoError(t, err)
	require.Zero(t, auth.Rights)

	count, err := testutil.GatherAndCount(reg, "authority_logons_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestCheckLogonDuringBootstrapKeepsCredential(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{options.KeyResetDate: ""})
	f.addUser("root", "rootpw1", v3.Admin())

	auth, err := f.engine.CheckLogon(ctx, "root", "rootpw1", true)
	require.NoError(t, err)
	require.Equal(t, v3.Admin(), auth.Rights)
	require.Nil(t, auth.Admin)
	require.Equal(t, password.Hash("root", "rootpw1", testSalt), auth.Credential)

	auth, err = f.engine.CheckLogon(ctx, "root", "wrong", true)
	require.NoError(t, err)
	require.Empty(t, auth.Credential)
	require.Zero(t, auth.Rights)
}

func TestSnapshotLoadSurvivesCallerCancellation(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser("root", "rootpw1", v3.Admin())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	records, err := f.engine.Administrators(ctx, admins.FilterAll)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestUserAndGroupMayShareName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addUser("editors", "secret1", v3.Value(rights.KeyUpload))
	f.store.Add(admins.Record{Username: "editors", Rights: v3.Value(rights.KeyAlbum)})

	user, err := f.engine.NewAdministrator(ctx, "editors", true)
	require.NoError(t, err)
	require.False(t, user.Transient())
	require.Equal(t, v3.Value(rights.KeyUpload), user.Record.Rights)

	group, err := f.engine.NewAdministrator(ctx, "editors", false)
	require.NoError(t, err)
	require.False(t, group.Transient())
	require.Equal(t, v3.Value(rights.KeyAlbum), group.Record.Rights)
}

func TestCheckLogonGeneratesSaltOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	store := optionstest.NewStore(nil)
	engine := authority.New(f.store, f.store, store, nil)

	_, err := engine.CheckLogon(ctx, "alice", "secret1", false)
	require.NoError(t, err)
	salt, _ := store.Get(ctx, options.KeySalt)
	require.NotEmpty(t, salt)

	digest, err := engine.PasswordHash(ctx, "alice", "secret1")
	require.NoError(t, err)
	require.Equal(t, password.Hash("alice", "secret1", salt), digest)
}

func TestMigrateRejectsUnsupportedTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.addUser("alice", "secret1", v3.Value(rights.KeyUpload))

	_, err := f.engine.Migrate(ctx, 4)
	require.ErrorIs(t, err, authority.ErrUnsupportedMigration)

	v, err := f.engine.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, rights.Version(3), v)
	rec, _ := f.store.Get(id)
	require.Equal(t, v3.Value(rights.KeyUpload), rec.Rights)
}

func TestMigrateRewritesRights(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{options.KeyRightsVersion: "2"})
	v2 := rights.MustDefinitions(2)
	id := f.addUser("alice", "secret1", v2.Value(rights.KeyUpload)|v2.Value(rights.KeyViewAll))

	report, err := f.engine.Migrate(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, rights.Version(2), report.From)
	require.Equal(t, rights.Version(3), report.To)
	require.Equal(t, 1, report.Migrated)
	require.Empty(t, report.Failed)

	rec, _ := f.store.Get(id)
	require.True(t, rec.Rights.Has(v3.Value(rights.KeyUpload)))
	require.True(t, rights.CanView(rec.Rights, 3))

	v, err := f.engine.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, rights.Version(3), v)

	require.Len(t, f.audit.logs, 1)
	require.Equal(t, "rights.migrate", f.audit.logs[0].Action)
}

func TestMigratePartialFailureLeavesMarkerAhead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{options.KeyRightsVersion: "2"})
	v2 := rights.MustDefinitions(2)
	okID := f.addUser("alice", "secret1", v2.Value(rights.KeyUpload))
	badID := f.addUser("bob", "secret2", v2.Value(rights.KeyTags))
	boom := errors.New("disk full")
	f.store.FailUpsert = func(rec admins.Record) error {
		if rec.ID == badID {
			return boom
		}
		return nil
	}

	report, err := f.engine.Migrate(ctx, 3)
	require.ErrorIs(t, err, authority.ErrPartialMigration)
	require.Equal(t, 1, report.Migrated)
	require.Len(t, report.Failed, 1)
	require.Equal(t, badID, report.Failed[0].ID)
	require.ErrorIs(t, report.Failed[0].Err, boom)

	v, err := f.engine.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, rights.Version(3), v)

	ok, _ := f.store.Get(okID)
	require.Equal(t, v3.Value(rights.KeyUpload), ok.Rights)
	bad, _ := f.store.Get(badID)
	require.Equal(t, v2.Value(rights.KeyTags), bad.Rights)
}

func TestMigrateInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{options.KeyRightsVersion: "2"})
	v2 := rights.MustDefinitions(2)
	f.addUser("root", "rootpw1", v2.Admin())

	before, err := f.engine.Administrators(ctx, admins.FilterAll)
	require.NoError(t, err)
	require.Equal(t, v2.Admin(), before[0].Rights)

	_, err = f.engine.Migrate(ctx, 3)
	require.NoError(t, err)

	after, err := f.engine.Administrators(ctx, admins.FilterAll)
	require.NoError(t, err)
	require.Equal(t, v3.Admin(), after[0].Rights)
}

func TestVersionFallsBackWhenStoredValueUnsupported(t *testing.T) {
	f := newFixture(t, map[string]string{options.KeyRightsVersion: "9"})

	v, err := f.engine.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, rights.PreferredVersion, v)
}

func TestAdministratorsFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addUser("root", "rootpw1", v3.Admin())
	f.store.Add(admins.Record{Username: "editors", Rights: v3.Value(rights.KeyAlbum)})

	users, err := f.engine.Administrators(ctx, admins.FilterUsers)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "root", users[0].Username)

	groups, err := f.engine.Administrators(ctx, admins.FilterGroups)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "editors", groups[0].Username)

	all, err := f.engine.Administrators(ctx, admins.FilterAll)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestAdminEmails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.store.Add(admins.Record{Username: "root", Name: "Site Owner", Email: "owner@example.com", Valid: true, Rights: v3.Admin()})
	f.store.Add(admins.Record{Username: "ops", Email: "ops@example.com", Valid: true, Rights: v3.Admin()})
	f.store.Add(admins.Record{Username: "broken", Email: "not-an-address", Valid: true, Rights: v3.Admin()})
	f.store.Add(admins.Record{Username: "alice", Email: "alice@example.com", Valid: true, Rights: v3.Value(rights.KeyUpload)})
	f.store.Add(admins.Record{Username: "admins", Email: "group@example.com", Rights: v3.Admin()})

	emails, err := f.engine.AdminEmails(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"Site Owner": "owner@example.com",
		"ops":        "ops@example.com",
	}, emails)

	emails, err = f.engine.AdminEmails(ctx, v3.Value(rights.KeyUpload))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"alice": "alice@example.com"}, emails)
}

func TestPasswordPolicyFollowsOptions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{
		options.KeyMinLength: "8",
		options.KeyPattern:   "a-z|0-9",
	})

	note, err := f.engine.PasswordNote(ctx)
	require.NoError(t, err)
	require.Contains(t, note, "8")

	err = f.engine.ValidatePassword(ctx, "abc")
	var violation *password.PolicyViolation
	require.ErrorAs(t, err, &violation)
	require.Equal(t, password.ReasonTooShort, violation.Reason)

	require.NoError(t, f.engine.ValidatePassword(ctx, "abcdefgh"))

	admin, err := f.engine.NewAdministrator(ctx, "alice", true)
	require.NoError(t, err)
	require.ErrorIs(t, f.engine.SetPassword(ctx, admin, "short"), password.ErrPolicyViolation)
	require.NoError(t, f.engine.SetPassword(ctx, admin, "longenough"))
	require.Equal(t, password.Hash("alice", "longenough", testSalt), admin.PasswordHash)
}

func TestSaveAndRemoveAdministratorRefreshCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addUser("root", "rootpw1", v3.Admin())

	admin, err := f.engine.NewAdministrator(ctx, "alice", true)
	require.NoError(t, err)
	admin.SetRights(v3.Value(rights.KeyUpload))
	require.NoError(t, f.engine.SetPassword(ctx, admin, "secret1"))
	require.NoError(t, f.engine.SaveAdministrator(ctx, admin, 1))

	auth, err := f.engine.CheckLogon(ctx, "alice", "secret1", false)
	require.NoError(t, err)
	require.Equal(t, v3.Value(rights.KeyUpload), auth.Rights)

	require.NoError(t, f.engine.RemoveAdministrator(ctx, admin, 1))
	users, err := f.engine.Administrators(ctx, admins.FilterUsers)
	require.NoError(t, err)
	require.Len(t, users, 1)

	require.Len(t, f.audit.logs, 2)
	require.Equal(t, "administrator.save", f.audit.logs[0].Action)
	require.Equal(t, strconv.FormatInt(admin.ID, 10), f.audit.logs[1].EntityID)
}

func TestMarkRightsResetEndsBootstrap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{options.KeyResetDate: ""})
	f.addUser("root", "rootpw1", v3.Admin())

	auth, err := f.engine.CheckAuthorization(ctx, "")
	require.NoError(t, err)
	require.Equal(t, v3.Admin(), auth.Rights)

	require.NoError(t, f.engine.MarkRightsReset(ctx))
	auth, err = f.engine.CheckAuthorization(ctx, "")
	require.NoError(t, err)
	require.Zero(t, auth.Rights)
}
