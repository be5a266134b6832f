package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// ErrConversion is wrapped by every failed conversion between Values and
// Go types.
var ErrConversion = errors.New("value: conversion failed")

// From converts a Go value into a Value. Basic kinds are mapped directly;
// anything else (structs, typed slices and maps, pointers) goes through its
// JSON encoding. Strings that are not valid UTF-8 are rejected; inside values
// of other types encoding/json replaces the invalid bytes with U+FFFD.
func From(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case *Value:
		if v == nil {
			return Null(), nil
		}
		return *v, nil
	case bool:
		return Bool(v), nil
	case string:
		if !utf8.ValidString(v) {
			return Null(), fmt.Errorf("%w: string %q is not valid UTF-8", ErrConversion, v)
		}
		return String(v), nil
	case int:
		return Int(int64(v)), nil
	case int8:
		return Int(int64(v)), nil
	case int16:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint:
		return fromUint(uint64(v)), nil
	case uint8:
		return Int(int64(v)), nil
	case uint16:
		return Int(int64(v)), nil
	case uint32:
		return Int(int64(v)), nil
	case uint64:
		return fromUint(v), nil
	case float32:
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
		return Float(f), nil
	case float64:
		return Float(v), nil
	case json.Number:
		return parseNumber(string(v))
	case json.RawMessage:
		return Parse(v)
	case []Value:
		return Array(v...), nil
	case []any:
		arr := make([]Value, len(v))
		for i, e := range v {
			ev, err := From(e)
			if err != nil {
				return Value{}, err
			}
			arr[i] = ev
		}
		return Value{kind: KindArray, arr: arr}, nil
	case map[string]Value:
		return Object(v), nil
	case map[string]any:
		obj := make(map[string]Value, len(v))
		for k, e := range v {
			if !utf8.ValidString(k) {
				return Value{}, fmt.Errorf("%w: key %q is not valid UTF-8", ErrConversion, k)
			}
			ev, err := From(e)
			if err != nil {
				return Value{}, err
			}
			obj[k] = ev
		}
		return Value{kind: KindObject, obj: obj}, nil
	}

	data, err := json.Marshal(x)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %T: %v", ErrConversion, x, err)
	}
	return Parse(data)
}

// FromSlice converts positional arguments.
func FromSlice(xs []any) ([]Value, error) {
	out := make([]Value, len(xs))
	for i, x := range xs {
		v, err := From(x)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Int(int64(u))
}

// As converts v into T.
//
// Numbers convert across classes: an Int widens to any float type, and a
// Float narrows to an integer type only when it is integral and in range.
// Records map onto structs (and sequences onto slices) by their JSON form.
// Null yields the zero T.
func As[T any](v Value) (T, error) {
	var out T
	if v.IsNull() {
		return out, nil
	}

	var err error
	switch p := any(&out).(type) {
	case *Value:
		*p = v
	case *any:
		*p = v.Interface()
	case *bool:
		b, ok := v.Bool()
		if !ok {
			return out, mismatch(v, out)
		}
		*p = b
	case *string:
		s, ok := v.Str()
		if !ok {
			return out, mismatch(v, out)
		}
		*p = s
	case *int:
		var i int64
		i, err = toInt(v, strconv.IntSize)
		*p = int(i)
	case *int8:
		var i int64
		i, err = toInt(v, 8)
		*p = int8(i)
	case *int16:
		var i int64
		i, err = toInt(v, 16)
		*p = int16(i)
	case *int32:
		var i int64
		i, err = toInt(v, 32)
		*p = int32(i)
	case *int64:
		*p, err = toInt(v, 64)
	case *uint:
		var u uint64
		u, err = toUint(v, strconv.IntSize)
		*p = uint(u)
	case *uint8:
		var u uint64
		u, err = toUint(v, 8)
		*p = uint8(u)
	case *uint16:
		var u uint64
		u, err = toUint(v, 16)
		*p = uint16(u)
	case *uint32:
		var u uint64
		u, err = toUint(v, 32)
		*p = uint32(u)
	case *uint64:
		*p, err = toUint(v, 64)
	case *float64:
		f, ok := v.Number()
		if !ok {
			return out, mismatch(v, out)
		}
		*p = f
	case *float32:
		f, ok := v.Number()
		if !ok {
			return out, mismatch(v, out)
		}
		if math.Abs(f) > math.MaxFloat32 {
			return out, fmt.Errorf("%w: %v overflows float32", ErrConversion, f)
		}
		*p = float32(f)
	default:
		var buf bytes.Buffer
		if err := v.encodeLoose(&buf); err != nil {
			return out, fmt.Errorf("%w: %v", ErrConversion, err)
		}
		if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
			return out, fmt.Errorf("%w: %s into %T: %v", ErrConversion, v.kind, out, err)
		}
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func mismatch(v Value, target any) error {
	return fmt.Errorf("%w: %s into %T", ErrConversion, v.kind, target)
}

func toInt(v Value, bits int) (int64, error) {
	lo, hi := int64(-1)<<(bits-1), int64(1)<<(bits-1)-1
	if bits == 64 {
		lo, hi = math.MinInt64, math.MaxInt64
	}
	switch v.kind {
	case KindInt:
		if v.i < lo || v.i > hi {
			return 0, fmt.Errorf("%w: %d overflows int%d", ErrConversion, v.i, bits)
		}
		return v.i, nil
	case KindFloat:
		if v.f != math.Trunc(v.f) {
			return 0, fmt.Errorf("%w: %v is not integral", ErrConversion, v.f)
		}
		if v.f < float64(lo) || v.f >= -float64(lo) {
			return 0, fmt.Errorf("%w: %v overflows int%d", ErrConversion, v.f, bits)
		}
		return int64(v.f), nil
	}
	return 0, fmt.Errorf("%w: %s into int%d", ErrConversion, v.kind, bits)
}

func toUint(v Value, bits int) (uint64, error) {
	hi := uint64(1)<<bits - 1
	if bits == 64 {
		hi = math.MaxUint64
	}
	switch v.kind {
	case KindInt:
		if v.i < 0 || uint64(v.i) > hi {
			return 0, fmt.Errorf("%w: %d overflows uint%d", ErrConversion, v.i, bits)
		}
		return uint64(v.i), nil
	case KindFloat:
		if v.f != math.Trunc(v.f) {
			return 0, fmt.Errorf("%w: %v is not integral", ErrConversion, v.f)
		}
		if v.f < 0 || v.f >= math.Ldexp(1, bits) {
			return 0, fmt.Errorf("%w: %v overflows uint%d", ErrConversion, v.f, bits)
		}
		return uint64(v.f), nil
	}
	return 0, fmt.Errorf("%w: %s into uint%d", ErrConversion, v.kind, bits)
}

// encodeLoose writes integral floats without a fractional part so that
// encoding/json accepts them for integer struct fields.
func (v Value) encodeLoose(buf *bytes.Buffer) error {
	switch v.kind {
	case KindFloat:
		if v.f == math.Trunc(v.f) && math.Abs(v.f) < 1e15 {
			buf.WriteString(strconv.FormatInt(int64(v.f), 10))
			return nil
		}
		return v.encode(buf)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encodeLoose(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := v.obj[k].encodeLoose(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	}
	return v.encode(buf)
}
