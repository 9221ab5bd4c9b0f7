package admins

import (
	"context"
	"errors"

	"github.com/odyssey-erp/authority/internal/rights"
)

// ErrNotFound indicates that no administrator matched.
var ErrNotFound = errors.New("admins: not found")

// Record is one row of the administrators table. Valid records are users;
// invalid ones are groups or templates.
type Record struct {
	ID           int64
	Username     string
	PasswordHash string
	Name         string
	Email        string
	Rights       rights.Mask
	Valid        bool
	// Group is the name of the group the user belongs to; "" means none.
	Group      string
	CustomData string
}

// ObjectType names the kind of a managed object.
type ObjectType string

const (
	ObjectAlbum ObjectType = "album"
	ObjectPage  ObjectType = "pages"
	ObjectNews  ObjectType = "news"
)

// DefaultEditMask grants every edit capability on a managed object.
const DefaultEditMask = 32767

// ManagedObject grants an administrator edit rights over one album, page
// or news category. Ref is the human readable reference (album folder,
// page or category slug); ObjectID is filled in when read from storage.
type ManagedObject struct {
	Type     ObjectType
	Ref      string
	ObjectID int64
	Edit     int
}

// Link is one row of the admin to object table.
type Link struct {
	AdminID  int64
	ObjectID int64
	Type     ObjectType
	Edit     int
}

// Criteria selects a single record. Zero fields are ignored.
type Criteria struct {
	ID           int64
	Username     string
	PasswordHash string
	// ValidOnly restricts the match to users.
	ValidOnly bool
	// GroupsOnly restricts the match to groups and templates.
	GroupsOnly bool
}

// Filter selects which records Administrators returns.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterUsers  Filter = "users"
	FilterGroups Filter = "groups"
)

// Apply keeps the records matching f, preserving order.
func (f Filter) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		switch f {
		case FilterUsers:
			if !rec.Valid {
				continue
			}
		case FilterGroups:
			if rec.Valid {
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}

// Store is the persistence boundary for administrators.
type Store interface {
	// ListAll returns every record ordered by rights descending, id ascending.
	ListAll(ctx context.Context) ([]Record, error)
	FindOne(ctx context.Context, c Criteria) (Record, error)
	// Upsert inserts rec when its ID is zero and updates it otherwise,
	// returning the ID.
	Upsert(ctx context.Context, rec Record) (int64, error)
	Delete(ctx context.Context, id int64) error
	ListManagedObjects(ctx context.Context, adminID int64) ([]ManagedObject, error)
	InsertManagedObjectLink(ctx context.Context, link Link) error
	DeleteManagedObjectLinks(ctx context.Context, adminID int64) error
}

// ObjectResolver maps a human readable reference to an object id.
type ObjectResolver interface {
	ResolveObject(ctx context.Context, typ ObjectType, ref string) (id int64, ok bool, err error)
}
