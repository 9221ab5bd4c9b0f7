// Package adminstest provides an in-memory administrator store for tests.
package adminstest

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/odyssey-erp/authority/internal/admins"
)

// Store is an in-memory admins.Store and admins.ObjectResolver. The Fail*
// hooks inject errors into individual operations.
type Store struct {
	mu      sync.Mutex
	records map[int64]admins.Record
	links   map[int64][]admins.Link
	objects map[admins.ObjectType]map[string]int64
	nextID  int64

	FailUpsert      func(rec admins.Record) error
	FailDelete      func(id int64) error
	FailDeleteLinks func(adminID int64) error
	FailList        error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[int64]admins.Record),
		links:   make(map[int64][]admins.Link),
		objects: make(map[admins.ObjectType]map[string]int64),
	}
}

// Add stores rec, assigning an id when it has none, and returns the id.
func (s *Store) Add(rec admins.Record) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == 0 {
		s.nextID++
		rec.ID = s.nextID
	} else if rec.ID > s.nextID {
		s.nextID = rec.ID
	}
	s.records[rec.ID] = rec
	return rec.ID
}

// AddObject registers a resolvable object reference.
func (s *Store) AddObject(typ admins.ObjectType, ref string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects[typ] == nil {
		s.objects[typ] = make(map[string]int64)
	}
	s.objects[typ][ref] = id
}

// Get returns the stored record with id.
func (s *Store) Get(id int64) (admins.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Links returns the stored links of an administrator.
func (s *Store) Links(adminID int64) []admins.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.links[adminID])
}

func (s *Store) ordered() []admins.Record {
	out := make([]admins.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b admins.Record) int {
		if a.Rights != b.Rights {
			return cmp.Compare(b.Rights, a.Rights)
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// ListAll implements admins.Store.
func (s *Store) ListAll(ctx context.Context) ([]admins.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList != nil {
		return nil, s.FailList
	}
	return s.ordered(), nil
}

// FindOne implements admins.Store.
func (s *Store) FindOne(ctx context.Context, c admins.Criteria) (admins.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.ordered() {
		switch {
		case c.ID != 0 && rec.ID != c.ID,
			c.Username != "" && rec.Username != c.Username,
			c.PasswordHash != "" && rec.PasswordHash != c.PasswordHash,
			c.ValidOnly && !rec.Valid,
			c.GroupsOnly && rec.Valid:
			continue
		}
		return rec, nil
	}
	return admins.Record{}, admins.ErrNotFound
}

// Upsert implements admins.Store.
func (s *Store) Upsert(ctx context.Context, rec admins.Record) (int64, error) {
	if s.FailUpsert != nil {
		if err := s.FailUpsert(rec); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == 0 {
		s.nextID++
		rec.ID = s.nextID
	} else if _, ok := s.records[rec.ID]; !ok {
		return 0, admins.ErrNotFound
	}
	s.records[rec.ID] = rec
	return rec.ID, nil
}

// Delete implements admins.Store.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if s.FailDelete != nil {
		if err := s.FailDelete(id); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return admins.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// ListManagedObjects implements admins.Store.
func (s *Store) ListManagedObjects(ctx context.Context, adminID int64) ([]admins.ManagedObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []admins.ManagedObject
	for _, link := range s.links[adminID] {
		obj := admins.ManagedObject{Type: link.Type, ObjectID: link.ObjectID, Edit: link.Edit}
		for ref, id := range s.objects[link.Type] {
			if id == link.ObjectID {
				obj.Ref = ref
			}
		}
		out = append(out, obj)
	}
	return out, nil
}

// InsertManagedObjectLink implements admins.Store.
func (s *Store) InsertManagedObjectLink(ctx context.Context, link admins.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.AdminID] = append(s.links[link.AdminID], link)
	return nil
}

// DeleteManagedObjectLinks implements admins.Store.
func (s *Store) DeleteManagedObjectLinks(ctx context.Context, adminID int64) error {
	if s.FailDeleteLinks != nil {
		if err := s.FailDeleteLinks(adminID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, adminID)
	return nil
}

// ResolveObject implements admins.ObjectResolver.
func (s *Store) ResolveObject(ctx context.Context, typ admins.ObjectType, ref string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.objects[typ][ref]
	return id, ok, nil
}

var (
	_ admins.Store          = (*Store)(nil)
	_ admins.ObjectResolver = (*Store)(nil)
)
