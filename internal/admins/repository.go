package admins

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/authority/internal/rights"
)

const recordColumns = `id, "user", pass, name, email, rights, valid, "group", custom_data`

// Repository implements Store and ObjectResolver using PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListAll returns all administrators.
func (r *Repository) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM administrators ORDER BY rights DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("admins: list: %w", err)
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("admins: list: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("admins: list: %w", err)
	}
	return records, nil
}

// FindOne returns the first record matching c in list order.
func (r *Repository) FindOne(ctx context.Context, c Criteria) (Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if c.ID != 0 {
		add("id = ?", c.ID)
	}
	if c.Username != "" {
		add(`"user" = ?`, c.Username)
	}
	if c.PasswordHash != "" {
		add("pass = ?", c.PasswordHash)
	}
	if c.ValidOnly {
		where = append(where, "valid")
	}
	if c.GroupsOnly {
		where = append(where, "NOT valid")
	}
	if len(where) == 0 {
		return Record{}, errors.New("admins: find one: empty criteria")
	}
	query := `SELECT ` + recordColumns + ` FROM administrators WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY rights DESC, id LIMIT 1`
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("admins: find one: %w", err)
	}
	return rec, nil
}

// Upsert inserts or updates a record.
func (r *Repository) Upsert(ctx context.Context, rec Record) (int64, error) {
	group := pgtype.Text{String: rec.Group, Valid: rec.Group != ""}
	if rec.ID == 0 {
		var id int64
		err := r.pool.QueryRow(ctx, `INSERT INTO administrators ("user", pass, name, email, rights, valid, "group", custom_data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			rec.Username, rec.PasswordHash, rec.Name, rec.Email, int64(rec.Rights), rec.Valid, group, rec.CustomData,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("admins: insert %s: %w", rec.Username, err)
		}
		return id, nil
	}
	tag, err := r.pool.Exec(ctx, `UPDATE administrators SET "user" = $2, pass = $3, name = $4, email = $5,
		rights = $6, valid = $7, "group" = $8, custom_data = $9 WHERE id = $1`,
		rec.ID, rec.Username, rec.PasswordHash, rec.Name, rec.Email, int64(rec.Rights), rec.Valid, group, rec.CustomData)
	if err != nil {
		return 0, fmt.Errorf("admins: update %d: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}
	return rec.ID, nil
}

// Delete removes the record with id.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM administrators WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("admins: delete %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListManagedObjects returns the object links of an administrator with
// their current references.
func (r *Repository) ListManagedObjects(ctx context.Context, adminID int64) ([]ManagedObject, error) {
	rows, err := r.pool.Query(ctx, `SELECT o.type, o.objectid, o.edit, COALESCE(a.folder, p.titlelink, n.titlelink, '')
		FROM admin_to_object o
		LEFT JOIN albums a ON o.type = 'album' AND a.id = o.objectid
		LEFT JOIN pages p ON o.type = 'pages' AND p.id = o.objectid
		LEFT JOIN news_categories n ON o.type = 'news' AND n.id = o.objectid
		WHERE o.adminid = $1 ORDER BY o.type, o.objectid`, adminID)
	if err != nil {
		return nil, fmt.Errorf("admins: list objects %d: %w", adminID, err)
	}
	defer rows.Close()
	var objects []ManagedObject
	for rows.Next() {
		var (
			obj ManagedObject
			typ string
		)
		if err := rows.Scan(&typ, &obj.ObjectID, &obj.Edit, &obj.Ref); err != nil {
			return nil, fmt.Errorf("admins: list objects %d: %w", adminID, err)
		}
		obj.Type = ObjectType(typ)
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("admins: list objects %d: %w", adminID, err)
	}
	return objects, nil
}

// InsertManagedObjectLink stores one link.
func (r *Repository) InsertManagedObjectLink(ctx context.Context, link Link) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO admin_to_object (adminid, objectid, type, edit) VALUES ($1, $2, $3, $4)`,
		link.AdminID, link.ObjectID, string(link.Type), link.Edit)
	if err != nil {
		return fmt.Errorf("admins: insert link %d: %w", link.AdminID, err)
	}
	return nil
}

// DeleteManagedObjectLinks removes every link of an administrator.
func (r *Repository) DeleteManagedObjectLinks(ctx context.Context, adminID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM admin_to_object WHERE adminid = $1`, adminID); err != nil {
		return fmt.Errorf("admins: delete links %d: %w", adminID, err)
	}
	return nil
}

// ResolveObject looks up the id of an album folder, page slug or news
// category slug.
func (r *Repository) ResolveObject(ctx context.Context, typ ObjectType, ref string) (int64, bool, error) {
	var query string
	switch typ {
	case ObjectAlbum:
		query = `SELECT id FROM albums WHERE folder = $1`
	case ObjectPage:
		query = `SELECT id FROM pages WHERE titlelink = $1`
	case ObjectNews:
		query = `SELECT id FROM news_categories WHERE titlelink = $1`
	default:
		return 0, false, nil
	}
	var id int64
	if err := r.pool.QueryRow(ctx, query, ref).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("admins: resolve %s %q: %w", typ, ref, err)
	}
	return id, true, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec   Record
		raw   int64
		group pgtype.Text
	)
	if err := row.Scan(&rec.ID, &rec.Username, &rec.PasswordHash, &rec.Name, &rec.Email, &raw, &rec.Valid, &group, &rec.CustomData); err != nil {
		return Record{}, err
	}
	rec.Rights = maskOf(raw)
	rec.Group = group.String
	return rec, nil
}

func maskOf(v int64) rights.Mask {
	if v < 0 {
		return 0
	}
	return rights.Mask(v)
}

var (
	_ Store          = (*Repository)(nil)
	_ ObjectResolver = (*Repository)(nil)
)
