package rbac_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/authority/internal/authority"
	"github.com/odyssey-erp/authority/internal/rbac"
	"github.com/odyssey-erp/authority/internal/rights"
)

type fixedCatalog rights.Version

func (v fixedCatalog) Catalog(context.Context) (rights.Catalog, error) {
	return rights.Definitions(rights.Version(v))
}

func serve(t *testing.T, h func(http.Handler) http.Handler, granted rights.Mask) int {
	t.Helper()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(authority.ContextWithAuthorization(req.Context(), authority.Authorization{Rights: granted}))
	rec := httptest.NewRecorder()
	h(ok).ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAny(t *testing.T) {
	c := rights.MustDefinitions(3)
	m := rbac.Middleware{Catalogs: fixedCatalog(3)}
	guard := m.RequireAny(rights.KeyUpload, rights.KeyAlbum)

	require.Equal(t, http.StatusNoContent, serve(t, guard, c.Value(rights.KeyAlbum)))
	require.Equal(t, http.StatusForbidden, serve(t, guard, c.Value(rights.KeyTags)))
	require.Equal(t, http.StatusUnauthorized, serve(t, guard, 0))
	require.Equal(t, http.StatusNoContent, serve(t, guard, c.Admin()))
}

func TestRequireAll(t *testing.T) {
	c := rights.MustDefinitions(3)
	m := rbac.Middleware{Catalogs: fixedCatalog(3)}
	guard := m.RequireAll(rights.KeyUpload, rights.KeyAlbum)

	require.Equal(t, http.StatusForbidden, serve(t, guard, c.Value(rights.KeyAlbum)))
	require.Equal(t, http.StatusNoContent, serve(t, guard, c.Value(rights.KeyAlbum)|c.Value(rights.KeyUpload)))
}

func TestGrantedIgnoresKeysMissingFromVersion(t *testing.T) {
	v1 := rights.MustDefinitions(1)

	// Version 1 has no separate pages right.
	require.False(t, rbac.Granted(v1, v1.Value(rights.KeyZenpage), rbac.Requirement{rights.KeyZenpagePages}, false))
	require.True(t, rbac.Granted(v1, v1.Value(rights.KeyZenpage), rbac.Requirement{rights.KeyZenpagePages, rights.KeyZenpage}, true))
	require.True(t, rbac.Granted(v1, 0, nil, true))
}

func TestRequirementMaskSkipsHiddenKeys(t *testing.T) {
	c := rights.MustDefinitions(2)
	mask, known := rbac.Requirement{"no_rights", " upload_rights "}.Mask(c)
	require.True(t, known)
	require.Equal(t, c.Value(rights.KeyUpload), mask)
}
