package parser

import (
	"fmt"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/tree"
)

// ParseSort reads a list of {"field": path, "order": 1 | -1} objects.
func ParseSort(n domain.TreeNode) (domain.Sort, error) {
	where := "sort"
	if !n.IsList() {
		return nil, parseErr(where, "expected a list")
	}
	res := make(domain.Sort, 0, len(n.Elements()))
	for i, e := range n.Elements() {
		w := fmt.Sprintf("%s[%d]", where, i)
		if err := knownKeys(e, w, "field", "order"); err != nil {
			return nil, err
		}
		f, ok, err := child(e, w, "field")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, parseErr(w, "sort needs a field")
		}
		p, err := pathValue(f, join(w, "field"))
		if err != nil {
			return nil, err
		}
		order := 1
		if o, ok := e.Child("order"); ok {
			if order, err = intValue(o, join(w, "order")); err != nil {
				return nil, err
			}
		}
		res = append(res, domain.SortField{Field: p, Order: order})
	}
	return res, nil
}

// ParseRequest reads a whole request:
//
//	{
//	  "operation": "find",
//	  "entity": "person",
//	  "version": "1",
//	  "roles": ["admin"],
//	  "documents": [...],
//	  "query": {...},
//	  "projection": [...],
//	  "update": {...},
//	  "upsert": false,
//	  "sort": [...],
//	  "from": 0,
//	  "to": 9
//	}
func ParseRequest(n domain.TreeNode, docFac domain.DocumentFactory) (*domain.Request, error) {
	where := "request"
	if !n.IsObject() {
		return nil, parseErr(where, "expected an object")
	}
	err := knownKeys(n, where, "operation", "entity", "version", "roles",
		"documents", "query", "projection", "update", "upsert", "sort", "from", "to")
	if err != nil {
		return nil, err
	}

	req := &domain.Request{}
	o, ok := n.Child("operation")
	if !ok {
		return nil, parseErr(where, "missing operation")
	}
	opName, err := stringValue(o, join(where, "operation"))
	if err != nil {
		return nil, err
	}
	if req.Operation, ok = domain.ParseOperation(opName); !ok {
		return nil, parseErr(where, "unknown operation %q", opName)
	}

	e, ok := n.Child("entity")
	if !ok {
		return nil, parseErr(where, "missing entity")
	}
	if req.Entity.Name, err = stringValue(e, join(where, "entity")); err != nil {
		return nil, err
	}
	if v, ok := n.Child("version"); ok {
		if req.Entity.Version, err = stringValue(v, join(where, "version")); err != nil {
			return nil, err
		}
	}

	if r, ok := n.Child("roles"); ok {
		if !r.IsList() {
			return nil, parseErr(join(where, "roles"), "expected a list")
		}
		for i, e := range r.Elements() {
			role, err := stringValue(e, fmt.Sprintf("%s.roles[%d]", where, i))
			if err != nil {
				return nil, err
			}
			req.Roles = append(req.Roles, role)
		}
	}

	if d, ok := n.Child("documents"); ok {
		if !d.IsList() {
			return nil, parseErr(join(where, "documents"), "expected a list")
		}
		for i, e := range d.Elements() {
			doc, err := tree.ToDocument(e, docFac)
			if err != nil {
				return nil, fmt.Errorf("%s.documents[%d]: %w", where, i, err)
			}
			req.Documents = append(req.Documents, doc)
		}
	}

	if q, ok := n.Child("query"); ok {
		if req.Query, err = ParseQuery(q); err != nil {
			return nil, err
		}
	}
	if p, ok := n.Child("projection"); ok {
		if req.Projection, err = ParseProjection(p); err != nil {
			return nil, err
		}
	}
	if u, ok := n.Child("update"); ok {
		if req.Update, err = ParseUpdate(u); err != nil {
			return nil, err
		}
	}
	if u, ok := n.Child("upsert"); ok {
		if req.Upsert, err = boolValue(u, join(where, "upsert")); err != nil {
			return nil, err
		}
	}
	if s, ok := n.Child("sort"); ok {
		if req.Sort, err = ParseSort(s); err != nil {
			return nil, err
		}
	}
	for _, bound := range []struct {
		key string
		dst **int
	}{{"from", &req.From}, {"to", &req.To}} {
		b, ok := n.Child(bound.key)
		if !ok {
			continue
		}
		i, err := intValue(b, join(where, bound.key))
		if err != nil {
			return nil, err
		}
		*bound.dst = &i
	}
	return req, nil
}
