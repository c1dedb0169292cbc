package data

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrTrailingData is returned by [ParseJSON] when the input holds more than
// one value. Other malformed input returns [io.ErrUnexpectedEOF] or a
// [*json.SyntaxError].
var ErrTrailingData = errors.New("trailing data after JSON")

// parser reads the token stream of a single JSON value into tree values.
type parser struct {
	dec *json.Decoder
}

func newParser(input []byte) *parser {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()
	return &parser{dec: dec}
}

func (p *parser) parse() (any, error) {
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	if _, err := p.dec.Token(); err != io.EOF {
		return nil, ErrTrailingData
	}
	return v, nil
}

func (p *parser) token() (json.Token, error) {
	t, err := p.dec.Token()
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	return t, err
}

func (p *parser) value() (any, error) {
	t, err := p.token()
	if err != nil {
		return nil, err
	}
	switch v := t.(type) {
	case json.Delim:
		if v == '{' {
			return p.object()
		}
		return p.array()
	case json.Number:
		return number(v)
	default:
		return v, nil
	}
}

// object reads the members after '{'. A repeated key keeps the position of
// its first occurrence and the value of its last.
func (p *parser) object() (*Object, error) {
	obj := NewObject(0)
	for p.dec.More() {
		t, err := p.token()
		if err != nil {
			return nil, err
		}
		key, _ := t.(string)
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		obj.Set(key, v)
	}
	if _, err := p.token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func (p *parser) array() ([]any, error) {
	arr := []any{}
	for p.dec.More() {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	if _, err := p.token(); err != nil {
		return nil, err
	}
	return arr, nil
}

func number(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("number %s: %w", n, err)
	}
	return f, nil
}
