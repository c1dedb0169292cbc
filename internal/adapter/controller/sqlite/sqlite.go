// Package sqlite contains a [domain.Controller] that stores documents as JSON
// text in SQLite, one table per entity.
//
// Comparisons, set membership, existence and logical operators over plain
// paths are translated to json_extract and json_type conditions; top-level
// $set and $unset are translated to json_set and json_remove. Everything
// else is reported as unsupported and evaluated in process by the caller.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
	_ "modernc.org/sqlite"
)

// Controller implements [domain.Controller].
type Controller struct {
	db          *sql.DB
	idField     string
	tablePrefix string

	mu     sync.Mutex
	tables map[string]string
}

// Open opens the database at dsn with the modernc SQLite driver. In-memory
// databases are limited to one connection so every statement sees the same
// data.
func Open(dsn string, options ...domain.ControllerOption) (*Controller, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewController(db, options...), nil
}

// NewController returns a new Controller using db.
func NewController(db *sql.DB, options ...domain.ControllerOption) *Controller {
	opts := domain.ControllerOptions{IDField: "_id"}
	for _, option := range options {
		option(&opts)
	}
	return &Controller{
		db:          db,
		idField:     opts.IDField,
		tablePrefix: opts.TablePrefix,
		tables:      make(map[string]string),
	}
}

// Close closes the underlying database.
func (c *Controller) Close() error {
	return c.db.Close()
}

// table returns the quoted table name of the entity, creating the table the
// first time it is used.
func (c *Controller) table(ctx context.Context, md *domain.EntityMetadata) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tables[md.Info.Name]; ok {
		return t, nil
	}
	t := quoteIdent(c.tablePrefix + md.Info.Name)
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc TEXT NOT NULL)", t)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("creating table for %q: %w", md.Info.Name, err)
	}
	c.tables[md.Info.Name] = t
	return t, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// idKey returns the primary key of an id. Ids are stored as their JSON text
// so 1 and "1" are different keys.
func idKey(id any) (string, error) {
	if id == nil {
		return "", domain.ErrMissingID
	}
	v, err := data.Normalize(id)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Controller) docID(doc domain.Document) (string, error) {
	if doc == nil || !doc.Has(c.idField) {
		return "", domain.ErrMissingID
	}
	return idKey(doc.Get(c.idField))
}

func encode(doc domain.Document) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decode parses a stored document and casts its top-level fields back to
// their declared types, since JSON text loses dates and the kind of
// integral doubles. Fields that cannot be cast are kept as read.
func (c *Controller) decode(md *domain.EntityMetadata, text string) (domain.Document, error) {
	v, err := data.ParseJSON([]byte(text))
	if err != nil {
		return nil, err
	}
	doc, ok := v.(domain.Document)
	if !ok {
		return nil, fmt.Errorf("stored document is a %T", v)
	}
	if md.Schema.Fields == nil {
		return doc, nil
	}
	for k, fv := range doc.Iter() {
		if k == c.idField {
			continue
		}
		node, ok := md.Schema.Fields.Child(k)
		if !ok {
			continue
		}
		if nv, err := modifier.CastValue(node, data.Copy(fv)); err == nil {
			doc.Set(k, nv)
		}
	}
	return doc, nil
}

type sqlQuery struct {
	where string
	args  []any
}

type sqlUpdate struct {
	expr string
	args []any
}

// TranslateQuery implements [domain.Controller].
func (c *Controller) TranslateQuery(md *domain.EntityMetadata, q domain.Query) (domain.NativeQuery, error) {
	b := condBuilder{md: md}
	where, err := b.query(q)
	if err != nil {
		return nil, err
	}
	return sqlQuery{where: where, args: b.args}, nil
}

// TranslateUpdate implements [domain.Controller]. Only literal sets and
// unsets of top-level fields other than the id are translated.
func (c *Controller) TranslateUpdate(md *domain.EntityMetadata, u domain.Update) (domain.NativeUpdate, error) {
	res := sqlUpdate{expr: "doc"}
	if err := c.update(md, u, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Controller) update(md *domain.EntityMetadata, u domain.Update, res *sqlUpdate) error {
	switch t := u.(type) {
	case domain.UpdateList:
		for _, item := range t.Items {
			if err := c.update(md, item, res); err != nil {
				return err
			}
		}
		return nil
	case domain.SetValue:
		if t.Value.IsCopy {
			return domain.ErrUnsupported
		}
		jp, err := c.topLevel(t.Field)
		if err != nil {
			return err
		}
		v, err := data.Normalize(data.Copy(t.Value.Literal))
		if err != nil {
			return domain.ErrUnsupported
		}
		if md != nil && md.Schema.Fields != nil {
			node, err := md.Resolve(t.Field)
			if err != nil {
				return domain.ErrUnsupported
			}
			if v, err = modifier.CastValue(node, v); err != nil {
				return domain.ErrUnsupported
			}
		}
		sv, ok := scalar(v)
		if !ok {
			return domain.ErrUnsupported
		}
		res.expr = fmt.Sprintf("json_set(%s, ?, %s)", res.expr, sv.placeholder())
		res.args = append(res.args, jp)
		res.args = append(res.args, sv.setArgs()...)
		return nil
	case domain.Unset:
		jp, err := c.topLevel(t.Field)
		if err != nil {
			return err
		}
		res.expr = fmt.Sprintf("json_remove(%s, ?)", res.expr)
		res.args = append(res.args, jp)
		return nil
	default:
		return domain.ErrUnsupported
	}
}

func (c *Controller) topLevel(p path.Path) (string, error) {
	if p.Len() != 1 || p.Segment(0).Kind() != path.Field || p.Segment(0).Name() == c.idField {
		return "", domain.ErrUnsupported
	}
	return jsonPath(p)
}

// Find implements [domain.Controller]. Documents are returned in id order.
func (c *Controller) Find(ctx context.Context, md *domain.EntityMetadata, q domain.NativeQuery) ([]domain.Document, error) {
	t, err := c.table(ctx, md)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SELECT doc FROM %s", t)
	var args []any
	switch nq := q.(type) {
	case nil:
	case sqlQuery:
		stmt += " WHERE " + nq.where
		args = nq.args
	default:
		return nil, fmt.Errorf("%w: native query %T", domain.ErrUnsupported, q)
	}
	rows, err := c.db.QueryContext(ctx, stmt+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Document
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		doc, err := c.decode(md, text)
		if err != nil {
			return nil, err
		}
		res = append(res, doc)
	}
	return res, rows.Err()
}

// Insert implements [domain.Controller].
func (c *Controller) Insert(ctx context.Context, md *domain.EntityMetadata, doc domain.Document) error {
	id, err := c.docID(doc)
	if err != nil {
		return err
	}
	text, err := encode(doc)
	if err != nil {
		return err
	}
	t, err := c.table(ctx, md)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES (?, ?) ON CONFLICT(id) DO NOTHING", t)
	r, err := c.db.ExecContext(ctx, stmt, id, text)
	if err != nil {
		return err
	}
	if n, err := r.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateID, id)
	}
	return nil
}

// Save implements [domain.Controller].
func (c *Controller) Save(ctx context.Context, md *domain.EntityMetadata, doc domain.Document, upsert bool) error {
	id, err := c.docID(doc)
	if err != nil {
		return err
	}
	text, err := encode(doc)
	if err != nil {
		return err
	}
	t, err := c.table(ctx, md)
	if err != nil {
		return err
	}
	if upsert {
		stmt := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET doc = excluded.doc", t)
		_, err := c.db.ExecContext(ctx, stmt, id, text)
		return err
	}
	r, err := c.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET doc = ? WHERE id = ?", t), text, id)
	if err != nil {
		return err
	}
	return affected(r, id)
}

// ApplyUpdate implements [domain.Controller].
func (c *Controller) ApplyUpdate(ctx context.Context, md *domain.EntityMetadata, id any, u domain.NativeUpdate) (domain.Document, error) {
	nu, ok := u.(sqlUpdate)
	if !ok {
		return nil, fmt.Errorf("%w: native update %T", domain.ErrUnsupported, u)
	}
	key, err := idKey(id)
	if err != nil {
		return nil, err
	}
	t, err := c.table(ctx, md)
	if err != nil {
		return nil, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	args := append(append([]any(nil), nu.args...), key)
	r, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET doc = %s WHERE id = ?", t, nu.expr), args...)
	if err != nil {
		return nil, err
	}
	if err := affected(r, key); err != nil {
		return nil, err
	}
	var text string
	if err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT doc FROM %s WHERE id = ?", t), key).Scan(&text); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c.decode(md, text)
}

// Delete implements [domain.Controller].
func (c *Controller) Delete(ctx context.Context, md *domain.EntityMetadata, id any) error {
	key, err := idKey(id)
	if err != nil {
		return err
	}
	t, err := c.table(ctx, md)
	if err != nil {
		return err
	}
	r, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", t), key)
	if err != nil {
		return err
	}
	return affected(r, key)
}

func affected(r sql.Result, id string) error {
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	return nil
}

// jsonPath renders p in the SQLite JSON path syntax. Wildcards have no
// equivalent there.
func jsonPath(p path.Path) (string, error) {
	var b strings.Builder
	b.WriteByte('$')
	for _, s := range p.Segments() {
		switch s.Kind() {
		case path.Field:
			if strings.ContainsAny(s.Name(), `"\`) {
				return "", domain.ErrUnsupported
			}
			b.WriteString(`."`)
			b.WriteString(s.Name())
			b.WriteByte('"')
		case path.Index:
			fmt.Fprintf(&b, "[%d]", s.Index())
		default:
			return "", domain.ErrUnsupported
		}
	}
	return b.String(), nil
}

var errNotScalar = errors.New("not a scalar")

// sqlValue is a literal in the form SQLite compares it in: json_extract
// returns integers or reals for numbers, text for strings and 1 or 0 for
// booleans.
type sqlValue struct {
	arg any
	// types lists the json_type results of comparable values.
	types string
	null  bool
	bool  bool
}

func scalar(v any) (sqlValue, bool) {
	v, err := normalizeScalar(v)
	if err != nil {
		return sqlValue{}, false
	}
	switch t := v.(type) {
	case nil:
		return sqlValue{null: true, types: "'null'"}, true
	case string:
		return sqlValue{arg: t, types: "'text'"}, true
	case int64, float64:
		return sqlValue{arg: t, types: "'integer','real'"}, true
	case bool:
		arg := int64(0)
		if t {
			arg = 1
		}
		return sqlValue{arg: arg, types: "'true','false'", bool: true}, true
	}
	return sqlValue{}, false
}

// placeholder returns the SQL expression json_set stores the value with.
func (v sqlValue) placeholder() string {
	switch {
	case v.null:
		return "json('null')"
	case v.bool:
		return "json(?)"
	default:
		return "?"
	}
}

func (v sqlValue) setArgs() []any {
	switch {
	case v.null:
		return nil
	case v.bool:
		if v.arg == int64(1) {
			return []any{"true"}
		}
		return []any{"false"}
	default:
		return []any{v.arg}
	}
}
