// Package data contains the default document tree: an insertion ordered
// object node, arrays as []any and plain Go scalars.
package data

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	goreflect "github.com/goccy/go-reflect"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
)

// TagName is the struct tag read by [NewDocument].
const TagName = "gedal"

var (
	timeTyp = goreflect.TypeOf(*new(time.Time))
)

// Object implements [domain.Document] keeping keys in insertion order.
// Setting an existing key keeps its position.
type Object struct {
	keys []string
	vals map[string]any
}

// NewObject returns an empty object with room for n keys.
func NewObject(n int) *Object {
	return &Object{keys: make([]string, 0, n), vals: make(map[string]any, n)}
}

// FromPairs builds an object from alternating keys and values. Values are
// stored as given. It panics if a key is not a string.
func FromPairs(kv ...any) *Object {
	res := NewObject(len(kv) / 2)
	for n := 0; n+1 < len(kv); n += 2 {
		res.Set(kv[n].(string), kv[n+1])
	}
	return res
}

// NewDocument returns a new instance of [domain.Document]. Maps and structs
// are converted recursively; map keys are sorted since Go maps carry no
// order. Existing documents are deep copied.
func NewDocument(in any) (domain.Document, error) {
	if in == nil {
		return NewObject(0), nil
	}
	if doc, ok := in.(domain.Document); ok {
		return CopyDocument(doc), nil
	}

	r := goreflect.ValueNoEscapeOf(in)
	k := r.Kind()
	for k == goreflect.Interface || k == reflect.Pointer {
		if r.IsNil() {
			return NewObject(0), nil
		}
		r = r.Elem()
		k = r.Kind()
	}
	if k != goreflect.Struct && k != goreflect.Map {
		return nil, fmt.Errorf("expected map or struct, got %s", r.Type().String())
	}
	doc, err := parseReflect(r)
	if err != nil {
		return nil, err
	}
	return doc.(domain.Document), nil
}

// Normalize converts an arbitrary Go value into a tree node: maps and structs
// become documents, slices become []any, integers become int64 and floats
// become float64.
func Normalize(in any) (any, error) {
	switch t := in.(type) {
	case nil, string, bool, int64, float64, time.Time:
		return t, nil
	case domain.Document:
		return CopyDocument(t), nil
	}
	return parseReflect(goreflect.ValueNoEscapeOf(in))
}

func parseReflect(r goreflect.Value) (any, error) {
	for r.Kind() == reflect.Pointer || r.Kind() == goreflect.Interface {
		if r.IsNil() {
			return nil, nil
		}
		if doc, ok := r.Interface().(domain.Document); ok {
			return CopyDocument(doc), nil
		}
		r = r.Elem()
	}
	switch r.Kind() {
	case goreflect.Invalid:
		return nil, nil
	case goreflect.Slice:
		if r.IsNil() {
			return nil, nil
		}
		fallthrough
	case goreflect.Array:
		return parseList(r)
	case goreflect.Struct:
		if r.Type() == timeTyp {
			return r.Interface(), nil
		}
		return parseStruct(r)
	case goreflect.Map:
		if r.IsNil() {
			return nil, nil
		}
		return parseMapReflect(r)
	case goreflect.Int, goreflect.Int8, goreflect.Int16, goreflect.Int32, goreflect.Int64:
		return r.Int(), nil
	case goreflect.Uint, goreflect.Uint8, goreflect.Uint16, goreflect.Uint32, goreflect.Uint64, goreflect.Uintptr:
		u := r.Uint()
		if u > math.MaxInt64 {
			return float64(u), nil
		}
		return int64(u), nil
	case goreflect.Float32, goreflect.Float64:
		return r.Float(), nil
	case goreflect.String:
		return r.String(), nil
	case goreflect.Bool:
		return r.Bool(), nil
	case goreflect.Chan, goreflect.Func:
		return nil, fmt.Errorf("cannot store value of kind %s", r.Kind())
	default:
		return r.Interface(), nil
	}
}

func parseStruct(r goreflect.Value) (domain.Document, error) {
	typ := r.Type()
	numField := r.NumField()

	res := NewObject(numField)

	for n := range numField {
		field := typ.Field(n)
		if field.PkgPath != "" {
			continue
		}
		fieldValue := r.Field(n)

		fieldInfo, err := parseField(fieldValue, field)
		if err != nil {
			return nil, err
		}

		if fieldInfo == nil {
			continue
		}
		res.Set(fieldInfo.name, fieldInfo.value)
	}
	return res, nil
}

func parseMapReflect(v goreflect.Value) (domain.Document, error) {
	keys := v.MapKeys()
	names := make([]string, len(keys))
	byName := make(map[string]goreflect.Value, len(keys))
	for n, k := range keys {
		names[n] = fmt.Sprint(k.Interface())
		byName[names[n]] = k
	}
	slices.Sort(names)
	res := NewObject(len(keys))
	for _, name := range names {
		value, err := parseReflect(v.MapIndex(byName[name]))
		if err != nil {
			return nil, err
		}
		res.Set(name, value)
	}
	return res, nil
}

type field struct {
	name  string
	value any
}

func parseField(r goreflect.Value, typ goreflect.StructField) (*field, error) {
	name := typ.Name
	var tagSegments []string
	if tag, ok := typ.Tag.Lookup(TagName); ok {
		if tag == "-" {
			return nil, nil
		}
		tagSegments = strings.Split(tag, ",")
		if tagSegments[0] != "" {
			name = tagSegments[0]
		}
		tagSegments = tagSegments[1:]
	}
	if slices.Contains(tagSegments, "omitempty") && isNullable(typ.Type) && r.IsNil() {
		return nil, nil
	}
	if slices.Contains(tagSegments, "omitzero") && r.IsZero() {
		return nil, nil
	}

	value, err := parseReflect(r)
	if err != nil {
		return nil, err
	}

	return &field{name: name, value: value}, nil
}

func parseList(r goreflect.Value) (any, error) {
	length := r.Len()
	res := make([]any, length)
	for i := range length {
		v, err := parseReflect(r.Index(i))
		if err != nil {
			return nil, err
		}
		res[i] = v
	}
	return res, nil
}

func isNullable(t goreflect.Type) bool {
	k := t.Kind()
	return k == reflect.Pointer ||
		k == reflect.Slice ||
		k == reflect.Map ||
		k == reflect.Interface
}

// Copy returns a deep copy of a tree node. Documents are copied into new
// [Object] values and arrays into new slices; scalars are returned as is.
func Copy(v any) any {
	switch t := v.(type) {
	case domain.Document:
		return CopyDocument(t)
	case []any:
		res := make([]any, len(t))
		for n, e := range t {
			res[n] = Copy(e)
		}
		return res
	default:
		return v
	}
}

// CopyDocument returns a deep copy of doc.
func CopyDocument(doc domain.Document) domain.Document {
	if doc == nil {
		return nil
	}
	res := NewObject(doc.Len())
	for k, v := range doc.Iter() {
		res.Set(k, Copy(v))
	}
	return res
}

// Get implements domain.Document
func (d *Object) Get(key string) any {
	return d.vals[key]
}

// Set implements domain.Document
func (d *Object) Set(key string, value any) {
	if d.vals == nil {
		d.vals = make(map[string]any)
	}
	if _, ok := d.vals[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.vals[key] = value
}

// Unset implements domain.Document
func (d *Object) Unset(key string) {
	if _, ok := d.vals[key]; !ok {
		return
	}
	delete(d.vals, key)
	d.keys = slices.DeleteFunc(d.keys, func(k string) bool { return k == key })
}

// D implements domain.Document
func (d *Object) D(key string) domain.Document {
	if doc, ok := d.vals[key].(domain.Document); ok {
		return doc
	}
	return nil
}

// Iter implements domain.Document.
func (d *Object) Iter() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, k := range d.keys {
			if !yield(k, d.vals[k]) {
				return
			}
		}
	}
}

// Keys implements domain.Document.
func (d *Object) Keys() iter.Seq[string] {
	return slices.Values(d.keys)
}

// Len implements domain.Document.
func (d *Object) Len() int {
	return len(d.keys)
}

// Values implements domain.Document.
func (d *Object) Values() iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, k := range d.keys {
			if !yield(d.vals[k]) {
				return
			}
		}
	}
}

// Has implements domain.Document.
func (d *Object) Has(key string) bool {
	_, has := d.vals[key]
	return has
}

// String implements [fmt.Stringer] using the JSON form of the object.
func (d *Object) String() string {
	b, err := d.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s>", err)
	}
	return string(b)
}

// MarshalJSON implements json.Marshaler. Keys are written in insertion
// order.
func (d *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case domain.Document:
		buf.WriteByte('{')
		first := true
		for k, val := range t.Iter() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			key, _ := json.Marshal(k)
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, val); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for n, e := range t {
			if n > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Object) UnmarshalJSON(input []byte) error {
	v, err := newParser(input).parse()
	if err != nil {
		return err
	}
	obj, ok := v.(*Object)
	if !ok {
		return fmt.Errorf("expected Document, received %T", v)
	}
	*d = *obj
	return nil
}

// ParseJSON parses any JSON value keeping object key order. Integers that fit
// an int64 are returned as int64, other numbers as float64.
func ParseJSON(input []byte) (any, error) {
	return newParser(input).parse()
}

// Equal reports whether two tree nodes are deeply equal. Key order of
// documents is not significant.
func Equal(a, b any) bool {
	switch ta := a.(type) {
	case domain.Document:
		tb, ok := b.(domain.Document)
		if !ok || ta.Len() != tb.Len() {
			return false
		}
		for k, v := range ta.Iter() {
			if !tb.Has(k) || !Equal(v, tb.Get(k)) {
				return false
			}
		}
		return true
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for n := range ta {
			if !Equal(ta[n], tb[n]) {
				return false
			}
		}
		return true
	case time.Time:
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	default:
		return a == b
	}
}
