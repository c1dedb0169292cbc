// Package decoder contains the default [domain.Decoder] implementation.
package decoder

import (
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/vinicius-lino-figueiredo/gedal/domain"
)

// TagName is the struct tag read when decoding.
const TagName = "gedal"

// Decoder implements domain.Decoder.
type Decoder struct {
	hook mapstructure.DecodeHookFunc
}

// NewDecoder returns a new implementation of domain.Decoder.
func NewDecoder() domain.Decoder {
	return &Decoder{
		hook: mapstructure.ComposeDecodeHookFunc(
			documentToMap,
			scalarToSlice,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	}
}

// Decode implements domain.Decoder. Documents found anywhere in src are read
// as maps, a single value is accepted where a slice is expected, and strings
// are accepted for [time.Time] (RFC 3339) and [time.Duration] targets.
func (d *Decoder) Decode(src any, tgt any) error {
	if v := reflect.ValueOf(tgt); v.Kind() != reflect.Pointer || v.IsNil() {
		return domain.ErrNonPointer
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    TagName,
		Result:     tgt,
		DecodeHook: d.hook,
	})
	if err == nil {
		err = dec.Decode(src)
	}
	if err != nil {
		return domain.ErrDecode{Err: err}
	}
	return nil
}

func documentToMap(_ reflect.Type, _ reflect.Type, v any) (any, error) {
	doc, ok := v.(domain.Document)
	if !ok {
		return v, nil
	}
	res := make(map[string]any, doc.Len())
	for k, v := range doc.Iter() {
		res[k] = v
	}
	return res, nil
}

// scalarToSlice lets "find: admin" mean "find: [admin]".
func scalarToSlice(from reflect.Type, to reflect.Type, v any) (any, error) {
	if to.Kind() != reflect.Slice || from == nil {
		return v, nil
	}
	switch from.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Pointer, reflect.Interface:
		return v, nil
	}
	return []any{v}, nil
}
