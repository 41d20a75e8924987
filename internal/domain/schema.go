package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// naive timestamps (no offset) are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Unix timestamps above this are taken to be in milliseconds.
const unixMillisThreshold = 2e10

// Timestamps must fall within these bounds to survive serialization.
var (
	minTime = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTime = time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC)
)

// DecodeJSON parses a single JSON value, keeping numbers as json.Number so
// integers and overflow fields survive untouched.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

// DecodeItem turns a queue payload into an Item. Bytes that are not JSON
// yield a *DecodeError; JSON that does not match the schema yields a
// *SchemaError.
func DecodeItem(data []byte) (Item, error) {
	raw, err := DecodeJSON(data)
	if err != nil {
		return Item{}, &DecodeError{Err: err}
	}
	return ParseItem(raw)
}

// ParseItem validates one raw record. Every field is checked before
// returning, so the *SchemaError lists all problems at once.
func ParseItem(raw any) (Item, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Item{}, &SchemaError{Fields: []FieldError{{Message: "must be an object"}}}
	}

	p := parser{obj: obj}
	it := Item{
		Backend:      p.requiredString(FieldBackend),
		BackendSub:   p.optionalString(FieldBackendSub),
		Type:         p.requiredString(FieldType),
		IconURL:      p.requiredString(FieldIconURL),
		Timestamp:    p.timestamp(FieldTimestamp),
		ItemURL:      p.requiredString(FieldItemURL),
		Author:       p.requiredString(FieldAuthor),
		ParentAuthor: p.optionalString(FieldParentAuthor),
		Text:         p.requiredString(FieldText),
		Title:        p.requiredString(FieldTitle),
		TitleType:    p.integer(FieldTitleType),
		Meta:         p.object(FieldMeta),
		Lang:         p.optionalString(FieldLang),
		Filter:       p.requiredString(FieldFilter),
	}

	for k, v := range obj {
		if _, known := knownFields[k]; known {
			continue
		}
		if it.Extra == nil {
			it.Extra = make(map[string]any)
		}
		it.Extra[k] = v
	}

	if len(p.errs) > 0 {
		return Item{}, &SchemaError{Fields: p.errs}
	}
	return it, nil
}

type parser struct {
	obj  map[string]any
	errs []FieldError
}

func (p *parser) fail(field, msg string) {
	p.errs = append(p.errs, FieldError{Field: field, Message: msg})
}

func (p *parser) lookup(field string, required bool) (any, bool) {
	v, ok := p.obj[field]
	if !ok {
		if required {
			p.fail(field, "field required")
		}
		return nil, false
	}
	if v == nil {
		if required {
			p.fail(field, "must not be null")
		}
		return nil, false
	}
	return v, true
}

func (p *parser) requiredString(field string) string {
	return p.str(field, true)
}

func (p *parser) optionalString(field string) string {
	return p.str(field, false)
}

func (p *parser) str(field string, required bool) string {
	v, ok := p.lookup(field, required)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		p.fail(field, "must be a string")
		return ""
	}
	return s
}

func (p *parser) integer(field string) int {
	v, ok := p.lookup(field, true)
	if !ok {
		return 0
	}

	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int(f)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	p.fail(field, "must be an integer")
	return 0
}

func (p *parser) object(field string) map[string]any {
	v, ok := p.lookup(field, false)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		p.fail(field, "must be an object")
		return nil
	}
	return m
}

func (p *parser) timestamp(field string) time.Time {
	v, ok := p.lookup(field, true)
	if !ok {
		return time.Time{}
	}

	switch t := v.(type) {
	case string:
		if ts, err := ParseTimestamp(t); err == nil && inDateRange(ts) {
			return ts
		}
	case json.Number:
		if f, err := t.Float64(); err == nil {
			if ts, ok := unixTime(f); ok {
				return ts
			}
		}
	}
	p.fail(field, "must be a valid date-time")
	return time.Time{}
}

// ParseTimestamp accepts RFC 3339 and the ISO 8601 variants webhook senders
// commonly emit.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// unixTime converts Unix seconds (or milliseconds) and reports false for
// values outside years 1 to 9999.
func unixTime(f float64) (time.Time, bool) {
	if math.Abs(f) > unixMillisThreshold {
		f /= 1000
	}
	if f < float64(minTime.Unix()) || f >= float64(maxTime.Unix()+1) {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// inDateRange reports whether ts has a four-digit year that RFC 3339 text
// can carry.
func inDateRange(ts time.Time) bool {
	return !ts.Before(minTime) && !ts.After(maxTime)
}
