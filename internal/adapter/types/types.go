// Package types contains the default [domain.Type] implementations used to
// cast portable values before they are written to documents.
package types

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/vinicius-lino-figueiredo/gedal/domain"
)

// Names of the default types.
const (
	String  = "string"
	Integer = "integer"
	Double  = "double"
	Boolean = "boolean"
	Date    = "date"
	UID     = "uid"
	// Any accepts every value unchanged.
	Any = "any"
)

var (
	errBoolNumber  = errors.New("booleans are not numbers")
	errFraction    = errors.New("value has a fractional part")
	errNotDecimal  = errors.New("not a decimal number")
	errNotScalar   = errors.New("value is not a scalar")
	errOutOfBounds = errors.New("value out of int64 range")
)

// Default returns a new registry holding every default type.
func Default() map[string]domain.Type {
	res := make(map[string]domain.Type)
	for _, t := range []domain.Type{
		stringType{}, integerType{}, doubleType{}, booleanType{},
		dateType{}, uidType{}, anyType{},
	} {
		res[t.Name()] = t
	}
	return res
}

func castErr(t domain.Type, v any, err error) error {
	return domain.CastError{Type: t.Name(), Value: v, Err: err}
}

func scalar(v any) bool {
	switch v.(type) {
	case []any, domain.Document, map[string]any:
		return false
	}
	return true
}

type stringType struct{}

func (stringType) Name() string { return String }

func (t stringType) ToNative(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if !scalar(v) {
		return nil, castErr(t, v, errNotScalar)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return nil, castErr(t, v, err)
	}
	return s, nil
}

func (stringType) ToPortable(v any) any { return v }

type integerType struct{}

func (integerType) Name() string { return Integer }

// ToNative reads strings as decimal numbers; "010" is ten.
func (t integerType) ToNative(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return nil, castErr(t, v, errBoolNumber)
	case float32, float64:
		return t.fromFloat(v, cast.ToFloat64(n))
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil || strings.ContainsAny(n, "xX") {
			return nil, castErr(t, v, errNotDecimal)
		}
		return t.fromFloat(v, f)
	}
	if !scalar(v) {
		return nil, castErr(t, v, errNotScalar)
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		return nil, castErr(t, v, err)
	}
	return i, nil
}

func (t integerType) fromFloat(v any, f float64) (any, error) {
	if f != math.Trunc(f) {
		return nil, castErr(t, v, errFraction)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, castErr(t, v, errOutOfBounds)
	}
	return int64(f), nil
}

func (integerType) ToPortable(v any) any { return v }

type doubleType struct{}

func (doubleType) Name() string { return Double }

func (t doubleType) ToNative(v any) (any, error) {
	switch v.(type) {
	case nil:
		return nil, nil
	case bool:
		return nil, castErr(t, v, errBoolNumber)
	}
	if !scalar(v) {
		return nil, castErr(t, v, errNotScalar)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, castErr(t, v, err)
	}
	return f, nil
}

func (doubleType) ToPortable(v any) any { return v }

type booleanType struct{}

func (booleanType) Name() string { return Boolean }

func (t booleanType) ToNative(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if !scalar(v) {
		return nil, castErr(t, v, errNotScalar)
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return nil, castErr(t, v, err)
	}
	return b, nil
}

func (booleanType) ToPortable(v any) any { return v }

type dateType struct{}

func (dateType) Name() string { return Date }

// ToNative accepts times, RFC 3339 (and the other layouts known to cast)
// strings and unix timestamps in seconds.
func (t dateType) ToNative(v any) (any, error) {
	switch v.(type) {
	case nil:
		return nil, nil
	case bool:
		return nil, castErr(t, v, errors.New("booleans are not dates"))
	}
	if !scalar(v) {
		return nil, castErr(t, v, errNotScalar)
	}
	d, err := cast.ToTimeE(v)
	if err != nil {
		return nil, castErr(t, v, err)
	}
	return d.UTC(), nil
}

func (dateType) ToPortable(v any) any {
	if d, ok := v.(time.Time); ok {
		return d.UTC().Format(time.RFC3339Nano)
	}
	return v
}

type uidType struct{}

func (uidType) Name() string { return UID }

func (t uidType) ToNative(v any) (any, error) {
	switch u := v.(type) {
	case nil:
		return nil, nil
	case uuid.UUID:
		return u.String(), nil
	case string:
		id, err := uuid.Parse(u)
		if err != nil {
			return nil, castErr(t, v, err)
		}
		return id.String(), nil
	}
	return nil, castErr(t, v, errors.New("expected a uuid string"))
}

func (uidType) ToPortable(v any) any { return v }

type anyType struct{}

func (anyType) Name() string { return Any }

func (anyType) ToNative(v any) (any, error) { return v, nil }

func (anyType) ToPortable(v any) any { return v }
