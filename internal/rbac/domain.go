// Package rbac guards HTTP routes with the rights bits of the active
// rights catalog.
package rbac

import (
	"context"
	"strings"

	"github.com/odyssey-erp/authority/internal/rights"
)

// Catalogs resolves the catalog of the active rights version.
type Catalogs interface {
	Catalog(ctx context.Context) (rights.Catalog, error)
}

// Requirement is a set of right keys, e.g. rights.KeyUpload.
type Requirement []string

// Mask resolves the keys against c. Keys the version does not define
// resolve to nothing; known reports whether any key was defined.
func (req Requirement) Mask(c rights.Catalog) (mask rights.Mask, known bool) {
	for _, key := range req {
		key = strings.ToUpper(strings.TrimSpace(key))
		if def, ok := c[key]; ok && def.Visible {
			mask |= def.Value
			known = true
		}
	}
	return mask, known
}

// Granted reports whether granted satisfies the requirement. The admin bit
// satisfies everything; an empty requirement is always satisfied.
func Granted(c rights.Catalog, granted rights.Mask, req Requirement, all bool) bool {
	if len(req) == 0 {
		return true
	}
	if admin := c.Admin(); admin != 0 && granted.Has(admin) {
		return true
	}
	mask, known := req.Mask(c)
	if !known {
		return false
	}
	if all {
		return granted.Has(mask)
	}
	return granted.HasAny(mask)
}
