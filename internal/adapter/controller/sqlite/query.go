package sqlite

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/types"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

var sqlOps = map[domain.BinaryOp]string{
	domain.Eq:  "=",
	domain.Ne:  "<>",
	domain.Lt:  "<",
	domain.Lte: "<=",
	domain.Gt:  ">",
	domain.Gte: ">=",
}

// jsonKinds are the types whose native values keep their kind in JSON text.
var jsonKinds = map[string]bool{
	types.String:  true,
	types.Integer: true,
	types.Double:  true,
	types.Boolean: true,
	types.UID:     true,
	types.Any:     true,
}

// condBuilder renders queries as WHERE conditions. Every condition it
// returns evaluates to 0 or 1, never NULL, so NOT keeps the in-process
// meaning for absent fields.
type condBuilder struct {
	md   *domain.EntityMetadata
	args []any
}

// compared renders the path of a field whose value is compared. Fields
// declared with a type stored as another JSON kind, such as dates stored as
// text, are unsupported: SQL would compare the text, the caller compares
// the decoded value.
func (b *condBuilder) compared(p path.Path) (string, error) {
	if b.md != nil {
		node, err := b.md.Resolve(p)
		if sf, ok := node.(*domain.SimpleField); err == nil && ok && sf.Type != nil && !jsonKinds[sf.Type.Name()] {
			return "", domain.ErrUnsupported
		}
	}
	return jsonPath(p)
}

func (b *condBuilder) query(q domain.Query) (string, error) {
	switch t := q.(type) {
	case domain.ValueComparison:
		return b.comparison(t)
	case domain.SetMembership:
		return b.membership(t)
	case domain.FieldExists:
		jp, err := jsonPath(t.Field)
		if err != nil {
			return "", err
		}
		b.args = append(b.args, jp)
		if t.Exists {
			return "(json_type(doc, ?) IS NOT NULL)", nil
		}
		return "(json_type(doc, ?) IS NULL)", nil
	case domain.NaryLogical:
		if len(t.Queries) == 0 {
			return "", domain.ErrUnsupported
		}
		op := " AND "
		if t.Op == domain.Or {
			op = " OR "
		}
		parts := make([]string, len(t.Queries))
		for n, sub := range t.Queries {
			part, err := b.query(sub)
			if err != nil {
				return "", err
			}
			parts[n] = part
		}
		return "(" + strings.Join(parts, op) + ")", nil
	case domain.Not:
		if t.Query == nil {
			return "", domain.ErrUnsupported
		}
		sub, err := b.query(t.Query)
		if err != nil {
			return "", err
		}
		return "(NOT " + sub + ")", nil
	default:
		return "", domain.ErrUnsupported
	}
}

// equals renders a NULL-safe equality between the field at jp and v.
func (b *condBuilder) equals(jp string, v sqlValue) string {
	if v.null {
		b.args = append(b.args, jp)
		return "COALESCE(json_type(doc, ?) = 'null', 0)"
	}
	b.args = append(b.args, jp, jp, v.arg)
	return fmt.Sprintf("COALESCE(json_type(doc, ?) IN (%s) AND json_extract(doc, ?) = ?, 0)", v.types)
}

func (b *condBuilder) comparison(vc domain.ValueComparison) (string, error) {
	jp, err := b.compared(vc.Field)
	if err != nil {
		return "", err
	}
	v, ok := scalar(vc.Value)
	if !ok {
		return "", domain.ErrUnsupported
	}
	if v.null {
		// null is only comparable to null, and equal to it
		switch vc.Op {
		case domain.Eq, domain.Lte, domain.Gte:
			return b.equals(jp, v), nil
		default:
			return "(0)", nil
		}
	}
	if vc.Op == domain.Eq {
		return b.equals(jp, v), nil
	}
	b.args = append(b.args, jp, jp, v.arg)
	return fmt.Sprintf("COALESCE(json_type(doc, ?) IN (%s) AND json_extract(doc, ?) %s ?, 0)", v.types, sqlOps[vc.Op]), nil
}

func (b *condBuilder) membership(sm domain.SetMembership) (string, error) {
	jp, err := b.compared(sm.Field)
	if err != nil {
		return "", err
	}
	if sm.Negate {
		// absent fields are in no set and out of none
		b.args = append(b.args, jp)
	}
	values := make([]sqlValue, len(sm.Values))
	for n, raw := range sm.Values {
		v, ok := scalar(raw)
		if !ok {
			return "", domain.ErrUnsupported
		}
		values[n] = v
	}
	var in string
	if len(values) == 0 {
		in = "(0)"
	} else {
		parts := make([]string, len(values))
		for n, v := range values {
			parts[n] = b.equals(jp, v)
		}
		in = "(" + strings.Join(parts, " OR ") + ")"
	}
	if !sm.Negate {
		return in, nil
	}
	return "(json_type(doc, ?) IS NOT NULL AND NOT " + in + ")", nil
}

// normalizeScalar converts the Go numeric kinds to int64 or float64. Values
// that SQLite cannot hold exactly return an error.
func normalizeScalar(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, int64, float64:
		return v, nil
	case int, int8, int16, int32, uint8, uint16, uint32:
		return cast.ToInt64E(t)
	case uint:
		if uint64(t) > math.MaxInt64 {
			return nil, errNotScalar
		}
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return nil, errNotScalar
		}
		return int64(t), nil
	case float32:
		return float64(t), nil
	}
	return nil, errNotScalar
}
