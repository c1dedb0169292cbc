// Package memory contains an in-memory [domain.Controller].
//
// Each entity is stored in a binary search tree keyed by document id. The controller
// only translates id equality queries; every other expression is evaluated
// in process by the caller.
package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/dolmen-go/contextio"
	"github.com/vinicius-lino-figueiredo/bst"
	"github.com/vinicius-lino-figueiredo/bst/adapter/unbalanced"
	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/ctxsync"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

// Controller implements [domain.Controller].
type Controller struct {
	mu          *ctxsync.RWMutex
	idField     string
	bstComparer bst.Comparer[any, domain.Document]
	tables      map[string]bst.BST[any, domain.Document]
}

// NewController returns a new Controller.
func NewController(options ...domain.ControllerOption) *Controller {
	opts := domain.ControllerOptions{
		IDField:  "_id",
		Comparer: comparer.NewComparer(),
	}
	for _, option := range options {
		option(&opts)
	}
	return &Controller{
		mu:          ctxsync.NewRWMutex(),
		idField:     opts.IDField,
		bstComparer: NewBSTComparer(opts.Comparer),
		tables:      make(map[string]bst.BST[any, domain.Document]),
	}
}

// idQuery is the only native query of the controller.
type idQuery struct {
	id any
}

// TranslateQuery implements [domain.Controller].
func (c *Controller) TranslateQuery(_ *domain.EntityMetadata, q domain.Query) (domain.NativeQuery, error) {
	vc, ok := q.(domain.ValueComparison)
	if !ok || vc.Op != domain.Eq || !vc.Field.Equal(path.New(path.FieldSegment(c.idField))) {
		return nil, domain.ErrUnsupported
	}
	if _, isDoc := vc.Value.(domain.Document); isDoc || vc.Value == nil {
		return nil, domain.ErrUnsupported
	}
	if _, isArr := vc.Value.([]any); isArr {
		return nil, domain.ErrUnsupported
	}
	return idQuery{id: vc.Value}, nil
}

// TranslateUpdate implements [domain.Controller]. Updates are always applied
// in process.
func (c *Controller) TranslateUpdate(*domain.EntityMetadata, domain.Update) (domain.NativeUpdate, error) {
	return nil, domain.ErrUnsupported
}

// Find implements [domain.Controller]. Returned documents are copies.
func (c *Controller) Find(ctx context.Context, md *domain.EntityMetadata, q domain.NativeQuery) ([]domain.Document, error) {
	if err := c.mu.RLock(ctx); err != nil {
		return nil, err
	}
	defer c.mu.RUnlock()

	tree := c.lookup(md.Info.Name)
	switch t := q.(type) {
	case nil:
		res := make([]domain.Document, 0, tree.GetNumberOfKeys())
		for doc := range tree.GetAll() {
			res = append(res, data.CopyDocument(doc))
		}
		return res, nil
	case idQuery:
		doc, err := c.search(tree, t.id)
		if err != nil || doc == nil {
			return nil, err
		}
		return []domain.Document{data.CopyDocument(doc)}, nil
	default:
		return nil, fmt.Errorf("%w: native query %T", domain.ErrUnsupported, q)
	}
}

// Insert implements [domain.Controller].
func (c *Controller) Insert(ctx context.Context, md *domain.EntityMetadata, doc domain.Document) error {
	id, err := c.id(doc)
	if err != nil {
		return err
	}
	if err := c.mu.Lock(ctx); err != nil {
		return err
	}
	defer c.mu.Unlock()

	return c.insert(c.table(md.Info.Name), id, doc)
}

func (c *Controller) insert(tree bst.BST[any, domain.Document], id any, doc domain.Document) error {
	if err := tree.Insert(id, data.CopyDocument(doc)); err != nil {
		if e := new(bst.ErrUniqueViolated); errors.As(err, e) {
			return fmt.Errorf("%w: %v", domain.ErrDuplicateID, id)
		}
		return err
	}
	return nil
}

// Save implements [domain.Controller].
func (c *Controller) Save(ctx context.Context, md *domain.EntityMetadata, doc domain.Document, upsert bool) error {
	id, err := c.id(doc)
	if err != nil {
		return err
	}
	if err := c.mu.Lock(ctx); err != nil {
		return err
	}
	defer c.mu.Unlock()

	tree := c.table(md.Info.Name)
	old, err := c.search(tree, id)
	if err != nil {
		return err
	}
	if old == nil {
		if !upsert {
			return fmt.Errorf("%w: %v", domain.ErrDocumentNotFound, id)
		}
		return c.insert(tree, id, doc)
	}
	if err := tree.Delete(id, &old); err != nil {
		return err
	}
	if err := c.insert(tree, id, doc); err != nil {
		// put the previous version back so a failed save changes nothing
		_ = tree.Insert(id, old)
		return err
	}
	return nil
}

// ApplyUpdate implements [domain.Controller]. No update is ever translated,
// so it always fails.
func (c *Controller) ApplyUpdate(context.Context, *domain.EntityMetadata, any, domain.NativeUpdate) (domain.Document, error) {
	return nil, domain.ErrUnsupported
}

// Delete implements [domain.Controller].
func (c *Controller) Delete(ctx context.Context, md *domain.EntityMetadata, id any) error {
	if err := c.mu.Lock(ctx); err != nil {
		return err
	}
	defer c.mu.Unlock()

	tree := c.table(md.Info.Name)
	old, err := c.search(tree, id)
	if err != nil {
		return err
	}
	if old == nil {
		return fmt.Errorf("%w: %v", domain.ErrDocumentNotFound, id)
	}
	return tree.Delete(id, &old)
}

func (c *Controller) id(doc domain.Document) (any, error) {
	if doc == nil || !doc.Has(c.idField) || doc.Get(c.idField) == nil {
		return nil, domain.ErrMissingID
	}
	return doc.Get(c.idField), nil
}

// table returns the tree of the entity, creating it if needed. Callers must
// hold the lock.
func (c *Controller) table(name string) bst.BST[any, domain.Document] {
	tree, ok := c.tables[name]
	if !ok {
		tree = unbalanced.NewBST(true, 8, c.bstComparer)
		c.tables[name] = tree
	}
	return tree
}

// lookup returns the tree of an entity without creating it.
func (c *Controller) lookup(name string) bst.BST[any, domain.Document] {
	if tree, ok := c.tables[name]; ok {
		return tree
	}
	return unbalanced.NewBST(true, 8, c.bstComparer)
}

func (c *Controller) search(tree bst.BST[any, domain.Document], id any) (domain.Document, error) {
	found, err := tree.Search(id)
	if err != nil {
		return nil, err
	}
	if found == nil || len(found.Values) == 0 {
		return nil, nil
	}
	return found.Values[0], nil
}

type snapshotLine struct {
	entity string
	doc    domain.Document
}

// Snapshot writes every stored document to w as JSON lines of the form
// {"entity": name, "document": doc}, entities by name and documents by id.
func (c *Controller) Snapshot(ctx context.Context, w io.Writer) error {
	if err := c.mu.RLock(ctx); err != nil {
		return err
	}
	lines := make([]snapshotLine, 0)
	for _, name := range slices.Sorted(maps.Keys(c.tables)) {
		for doc := range c.tables[name].GetAll() {
			lines = append(lines, snapshotLine{entity: name, doc: data.CopyDocument(doc)})
		}
	}
	c.mu.RUnlock()

	bw := bufio.NewWriter(contextio.NewWriter(ctx, w))
	for _, l := range lines {
		b, err := data.FromPairs("entity", l.entity, "document", l.doc).MarshalJSON()
		if err != nil {
			return err
		}
		if _, err := bw.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Restore replaces the stored documents by the ones read from r, in the
// format written by [Controller.Snapshot]. Nothing changes if r cannot be
// read completely.
func (c *Controller) Restore(ctx context.Context, r io.Reader) error {
	tables := make(map[string]bst.BST[any, domain.Document])
	scanner := bufio.NewScanner(contextio.NewReader(ctx, r))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		v, err := data.ParseJSON(scanner.Bytes())
		if err != nil {
			return fmt.Errorf("snapshot line %d: %w", line, err)
		}
		obj, ok := v.(domain.Document)
		if !ok {
			return fmt.Errorf("snapshot line %d: expected object, got %T", line, v)
		}
		name, _ := obj.Get("entity").(string)
		doc := obj.D("document")
		if name == "" || doc == nil {
			return fmt.Errorf("snapshot line %d: missing entity or document", line)
		}
		id, err := c.id(doc)
		if err != nil {
			return fmt.Errorf("snapshot line %d: %w", line, err)
		}
		tree, ok := tables[name]
		if !ok {
			tree = unbalanced.NewBST(true, 8, c.bstComparer)
			tables[name] = tree
		}
		if err := c.insert(tree, id, doc); err != nil {
			return fmt.Errorf("snapshot line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if err := c.mu.Lock(ctx); err != nil {
		return err
	}
	c.tables = tables
	c.mu.Unlock()
	return nil
}
