// Package sqlite is a standalone catalog backend on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dgallion1/planmark/internal/catalog"
	"github.com/dgallion1/planmark/internal/catalog/sqlite/migrations"
	"github.com/dgallion1/planmark/internal/plan"
)

// Store implements catalog.Store on SQLite. Entities are unique per
// (type, parent, normalized label); deleting an annotation leaves entities
// untouched.
type Store struct {
	db   *sql.DB
	path string
}

var _ catalog.Store = (*Store)(nil)

// Open opens or creates the database at path and applies pending
// migrations. ":memory:" keeps everything on a single connection.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// migrate applies every NNN_name.up.sql newer than the recorded version.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Pages ====================

const pageColumns = "id, document_id, ordinal, native_width, native_height, scale, page_type"

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(row scanner) (plan.Page, error) {
	var p plan.Page
	var pt string
	if err := row.Scan(&p.ID, &p.DocumentID, &p.Ordinal, &p.NativeWidth, &p.NativeHeight, &p.Scale, &pt); err != nil {
		return plan.Page{}, err
	}
	p.PageType = plan.PageType(pt)
	return p, nil
}

func (s *Store) GetPage(ctx context.Context, id string) (plan.Page, error) {
	p, err := scanPage(s.db.QueryRowContext(ctx, "SELECT "+pageColumns+" FROM pages WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Page{}, fmt.Errorf("page %s: %w", id, plan.ErrNotFound)
	}
	if err != nil {
		return plan.Page{}, fmt.Errorf("get page: %w", err)
	}
	return p, nil
}

func (s *Store) ListPages(ctx context.Context, documentID string) ([]plan.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+pageColumns+" FROM pages WHERE document_id = ? ORDER BY ordinal", documentID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()
	var out []plan.Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreatePage(ctx context.Context, p plan.Page) (plan.Page, error) {
	if p.DocumentID == "" || p.Ordinal < 1 {
		return plan.Page{}, fmt.Errorf("create page: document id and 1-based ordinal required")
	}
	if p.PageType == "" {
		p.PageType = plan.PageOther
	}
	if _, err := plan.ParsePageType(string(p.PageType)); err != nil {
		return plan.Page{}, fmt.Errorf("create page: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO pages ("+pageColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.DocumentID, p.Ordinal, p.NativeWidth, p.NativeHeight, p.Scale, string(p.PageType))
	if err != nil {
		return plan.Page{}, fmt.Errorf("create page: %w", mapConstraint(err))
	}
	return p, nil
}

func (s *Store) SetPageType(ctx context.Context, id string, pt plan.PageType) error {
	if _, err := plan.ParsePageType(string(pt)); err != nil {
		return fmt.Errorf("set page type: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE pages SET page_type = ? WHERE id = ?", string(pt), id)
	if err != nil {
		return fmt.Errorf("set page type: %w", err)
	}
	return expectOne(res, "page", id)
}

// ==================== Entities ====================

const entityColumns = "id, type, parent_id, label, attrs"

func scanEntity(row scanner) (plan.Entity, error) {
	var e plan.Entity
	var typ, attrs string
	if err := row.Scan(&e.ID, &typ, &e.ParentID, &e.Label, &attrs); err != nil {
		return plan.Entity{}, err
	}
	e.Type = plan.AnnotationType(typ)
	if err := unmarshalMap(attrs, &e.Attrs); err != nil {
		return plan.Entity{}, fmt.Errorf("entity %s attrs: %w", e.ID, err)
	}
	return e, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getEntity(ctx context.Context, q querier, id string) (plan.Entity, error) {
	e, err := scanEntity(q.QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Entity{}, fmt.Errorf("entity %s: %w", id, plan.ErrNotFound)
	}
	if err != nil {
		return plan.Entity{}, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (plan.Entity, error) {
	return getEntity(ctx, s.db, id)
}

func (s *Store) CreateEntity(ctx context.Context, e plan.Entity) (plan.Entity, error) {
	return createEntity(ctx, s.db, e)
}

func createEntity(ctx context.Context, q querier, e plan.Entity) (plan.Entity, error) {
	if !e.Type.IsEntity() {
		return plan.Entity{}, fmt.Errorf("create entity: %w: %q has no entity", plan.ErrInvalidHierarchy, e.Type)
	}
	var parent *plan.Entity
	if e.ParentID != "" {
		p, err := getEntity(ctx, q, e.ParentID)
		if err != nil && !errors.Is(err, plan.ErrNotFound) {
			return plan.Entity{}, fmt.Errorf("create entity: %w", err)
		}
		if err == nil {
			parent = &p
		}
	}
	if err := plan.ValidateParent(e.Type, e.ParentID, parent); err != nil {
		return plan.Entity{}, fmt.Errorf("create entity: %w", err)
	}
	norm := plan.NormalizeLabel(e.Label)
	if norm == "" {
		return plan.Entity{}, fmt.Errorf("create entity: label required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	attrs, err := marshalMap(e.Attrs)
	if err != nil {
		return plan.Entity{}, fmt.Errorf("marshalling attrs: %w", err)
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO entities (id, type, parent_id, label, label_norm, attrs) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, string(e.Type), e.ParentID, e.Label, norm, attrs)
	if err != nil {
		return plan.Entity{}, fmt.Errorf("create entity %q: %w", e.Label, mapConstraint(err))
	}
	return e, nil
}

func (s *Store) ListEntities(ctx context.Context, t plan.AnnotationType, parentRef string) ([]plan.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entityColumns+" FROM entities WHERE type = ? AND parent_id = ? ORDER BY rowid",
		string(t), parentRef)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()
	var out []plan.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) FindEntityByLabel(ctx context.Context, t plan.AnnotationType, parentRef, label string) (*plan.Entity, error) {
	e, err := scanEntity(s.db.QueryRowContext(ctx,
		"SELECT "+entityColumns+" FROM entities WHERE type = ? AND parent_id = ? AND label_norm = ?",
		string(t), parentRef, plan.NormalizeLabel(label)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find entity: %w", err)
	}
	return &e, nil
}

// ==================== Annotations ====================

const annotationColumns = "id, page_id, type, x, y, w, h, label, color, linked_entity_id, parent_entity_ref, metadata, created_at, updated_at"

func scanAnnotation(row scanner) (plan.Annotation, error) {
	var a plan.Annotation
	var typ, meta, created, updated string
	err := row.Scan(&a.ID, &a.PageID, &typ, &a.Box.X, &a.Box.Y, &a.Box.W, &a.Box.H,
		&a.Label, &a.Color, &a.LinkedEntityID, &a.ParentEntityRef, &meta, &created, &updated)
	if err != nil {
		return plan.Annotation{}, err
	}
	a.Type = plan.AnnotationType(typ)
	if err := unmarshalMap(meta, &a.Metadata); err != nil {
		return plan.Annotation{}, fmt.Errorf("annotation %s metadata: %w", a.ID, err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return plan.Annotation{}, fmt.Errorf("annotation %s created_at: %w", a.ID, err)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return plan.Annotation{}, fmt.Errorf("annotation %s updated_at: %w", a.ID, err)
	}
	return a, nil
}

func (s *Store) ListAnnotations(ctx context.Context, pageID string) ([]plan.Annotation, error) {
	if _, err := s.GetPage(ctx, pageID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+annotationColumns+" FROM annotations WHERE page_id = ? ORDER BY rowid", pageID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()
	out := []plan.Annotation{}
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateAnnotation inserts the annotation and, for entity types without a
// LinkedEntityID, its backing entity in one transaction.
func (s *Store) CreateAnnotation(ctx context.Context, req catalog.CreateAnnotationRequest) (plan.Annotation, error) {
	if _, err := plan.ParseAnnotationType(string(req.Type)); err != nil {
		return plan.Annotation{}, fmt.Errorf("create annotation: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return plan.Annotation{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages WHERE id = ?", req.PageID).Scan(&exists); err != nil {
		return plan.Annotation{}, fmt.Errorf("create annotation: %w", err)
	}
	if exists == 0 {
		return plan.Annotation{}, fmt.Errorf("create annotation: page %s: %w", req.PageID, plan.ErrNotFound)
	}

	linked := req.LinkedEntityID
	switch {
	case !req.Type.IsEntity():
		if req.ParentEntityRef != "" {
			if _, err := getEntity(ctx, tx, req.ParentEntityRef); err != nil {
				return plan.Annotation{}, fmt.Errorf("create annotation: note target: %w", err)
			}
		}
	case linked != "":
		e, err := getEntity(ctx, tx, linked)
		if err != nil {
			return plan.Annotation{}, fmt.Errorf("create annotation: %w", err)
		}
		if e.Type != req.Type {
			return plan.Annotation{}, fmt.Errorf("create annotation: %w: entity %s is a %s", plan.ErrInvalidHierarchy, linked, e.Type)
		}
		if req.ParentEntityRef != "" && e.ParentID != req.ParentEntityRef {
			return plan.Annotation{}, fmt.Errorf("create annotation: %w: entity %s is not under %s", plan.ErrInvalidHierarchy, linked, req.ParentEntityRef)
		}
	default:
		e, err := createEntity(ctx, tx, plan.Entity{
			Type:     req.Type,
			ParentID: req.ParentEntityRef,
			Label:    req.Label,
			Attrs:    req.EntityAttrs,
		})
		if err != nil {
			return plan.Annotation{}, fmt.Errorf("create annotation: %w", err)
		}
		linked = e.ID
	}

	meta, err := marshalMap(req.Metadata)
	if err != nil {
		return plan.Annotation{}, fmt.Errorf("marshalling metadata: %w", err)
	}
	now := time.Now().UTC()
	a := plan.Annotation{
		ID:              uuid.NewString(),
		PageID:          req.PageID,
		Type:            req.Type,
		Box:             req.Box,
		Label:           req.Label,
		Color:           req.Color,
		LinkedEntityID:  linked,
		ParentEntityRef: req.ParentEntityRef,
		Metadata:        req.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO annotations ("+annotationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.PageID, string(a.Type), a.Box.X, a.Box.Y, a.Box.W, a.Box.H, a.Label, a.Color,
		a.LinkedEntityID, a.ParentEntityRef, meta, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return plan.Annotation{}, fmt.Errorf("create annotation: %w", mapConstraint(err))
	}
	if err := tx.Commit(); err != nil {
		return plan.Annotation{}, fmt.Errorf("commit: %w", err)
	}
	return a, nil
}

func (s *Store) UpdateAnnotationGeometry(ctx context.Context, id string, box plan.Box) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE annotations SET x = ?, y = ?, w = ?, h = ?, updated_at = ? WHERE id = ?",
		box.X, box.Y, box.W, box.H, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update geometry: %w", err)
	}
	return expectOne(res, "annotation", id)
}

// UpdateAnnotationMetadata merges attrs into the stored metadata. A nil
// value removes the key.
func (s *Store) UpdateAnnotationMetadata(ctx context.Context, id string, attrs map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, "SELECT metadata FROM annotations WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("annotation %s: %w", id, plan.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	var current map[string]any
	if err := unmarshalMap(raw, &current); err != nil {
		return fmt.Errorf("annotation %s metadata: %w", id, err)
	}
	merged, err := marshalMap(plan.MergeMetadata(current, attrs))
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE annotations SET metadata = ?, updated_at = ? WHERE id = ?",
		merged, time.Now().UTC().Format(time.RFC3339Nano), id); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return tx.Commit()
}

func (s *Store) DeleteAnnotation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM annotations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	return expectOne(res, "annotation", id)
}

// ==================== helpers ====================

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, plan.ErrNotFound)
	}
	return nil
}

// mapConstraint turns unique-constraint failures into plan.ErrDuplicate.
func mapConstraint(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", plan.ErrDuplicate, err)
	}
	return err
}

func marshalMap(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalMap(raw string, out *map[string]any) error {
	if raw == "" || raw == "{}" || raw == "null" {
		*out = nil
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}
