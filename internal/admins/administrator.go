package admins

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/authority/internal/rights"
)

// Administrator wraps one stored record together with its managed objects.
// Instances are normally obtained from the authority engine, which applies
// master user promotion.
type Administrator struct {
	Record

	store    Store
	resolver ObjectResolver

	promoted  rights.Mask
	master    bool
	objects   []ManagedObject
	loaded    bool
	transient bool
}

// NewAdministrator wraps rec. A transient administrator has never been
// stored and has no managed objects to load.
func NewAdministrator(store Store, resolver ObjectResolver, rec Record, transient bool) *Administrator {
	return &Administrator{Record: rec, store: store, resolver: resolver, transient: transient}
}

// Promote grants extra bits on top of the stored rights and marks the
// administrator as the master user. The grant is never persisted.
func (a *Administrator) Promote(extra rights.Mask) {
	a.promoted |= extra
	a.master = true
}

// Master reports whether the administrator is the promoted master user.
func (a *Administrator) Master() bool { return a.master }

// Transient reports whether the record has not been stored yet.
func (a *Administrator) Transient() bool { return a.transient }

// Rights returns the effective rights including any promotion.
func (a *Administrator) Rights() rights.Mask {
	return a.Record.Rights | a.promoted
}

// SetRights replaces the stored rights.
func (a *Administrator) SetRights(m rights.Mask) {
	a.Record.Rights = m
}

// Objects returns the managed objects, loading them on first use.
func (a *Administrator) Objects(ctx context.Context) ([]ManagedObject, error) {
	if a.loaded {
		return a.objects, nil
	}
	if !a.transient && a.ID != 0 {
		objects, err := a.store.ListManagedObjects(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		a.objects = objects
	}
	a.loaded = true
	return a.objects, nil
}

// ObjectRefs returns the references of the managed objects of one type.
func (a *Administrator) ObjectRefs(ctx context.Context, typ ObjectType) ([]string, error) {
	objects, err := a.Objects(ctx)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, obj := range objects {
		if obj.Type == typ {
			refs = append(refs, obj.Ref)
		}
	}
	return refs, nil
}

// SetObjects replaces the managed objects; they are written on Save.
func (a *Administrator) SetObjects(objects []ManagedObject) {
	a.objects = objects
	a.loaded = true
}

// Save stores the record and then replaces its managed object links.
// References are resolved at save time; ones that no longer resolve are
// skipped.
func (a *Administrator) Save(ctx context.Context) error {
	objects, err := a.Objects(ctx)
	if err != nil {
		return fmt.Errorf("admins: save %s: %w", a.Username, err)
	}
	id, err := a.store.Upsert(ctx, a.Record)
	if err != nil {
		return err
	}
	a.ID = id
	a.transient = false

	if err := a.store.DeleteManagedObjectLinks(ctx, id); err != nil {
		return err
	}
	for i, obj := range objects {
		objectID, ok, err := a.resolver.ResolveObject(ctx, obj.Type, obj.Ref)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		edit := obj.Edit
		if edit == 0 {
			edit = DefaultEditMask
		}
		if err := a.store.InsertManagedObjectLink(ctx, Link{AdminID: id, ObjectID: objectID, Type: obj.Type, Edit: edit}); err != nil {
			return err
		}
		objects[i].ObjectID = objectID
	}
	return nil
}

// Remove deletes the managed object links and then the record. When the
// links cannot be deleted the record is left in place.
func (a *Administrator) Remove(ctx context.Context) error {
	if a.transient || a.ID == 0 {
		return ErrNotFound
	}
	if err := a.store.DeleteManagedObjectLinks(ctx, a.ID); err != nil {
		return fmt.Errorf("admins: remove %s: %w", a.Username, err)
	}
	if err := a.store.Delete(ctx, a.ID); err != nil {
		return err
	}
	a.objects = nil
	a.loaded = true
	a.transient = true
	return nil
}
