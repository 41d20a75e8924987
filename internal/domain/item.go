package domain

import (
	"encoding/json"
	"time"
)

// Item is the canonical event record relayed from the webhook to the
// notification channel.
//
// Items are values: once ParseItem or DecodeItem returns one, no component
// modifies it. Extra holds every field the schema does not name so that
// producers and consumers can evolve independently.
type Item struct {
	Backend      string
	BackendSub   string
	Type         string
	IconURL      string
	Timestamp    time.Time
	ItemURL      string
	Author       string
	ParentAuthor string
	Text         string
	Title        string
	TitleType    int
	Meta         map[string]any
	Lang         string
	Filter       string

	// Extra carries unrecognized fields verbatim (numbers as json.Number).
	Extra map[string]any
}

// Field names as they appear on the wire.
const (
	FieldBackend      = "backend"
	FieldBackendSub   = "backend_sub"
	FieldType         = "type"
	FieldIconURL      = "icon_url"
	FieldTimestamp    = "timestamp"
	FieldItemURL      = "item_url"
	FieldAuthor       = "author"
	FieldParentAuthor = "parent_author"
	FieldText         = "text"
	FieldTitle        = "title"
	FieldTitleType    = "title_type"
	FieldMeta         = "meta"
	FieldLang         = "lang"
	FieldFilter       = "filter"
)

// knownFields lists every schema field; anything else lands in Extra.
var knownFields = map[string]struct{}{
	FieldBackend: {}, FieldBackendSub: {}, FieldType: {}, FieldIconURL: {},
	FieldTimestamp: {}, FieldItemURL: {}, FieldAuthor: {}, FieldParentAuthor: {},
	FieldText: {}, FieldTitle: {}, FieldTitleType: {}, FieldMeta: {},
	FieldLang: {}, FieldFilter: {},
}

// Attribute keys attached to every queue message.
const (
	AttrFilter     = "filter"
	AttrBackend    = "backend"
	AttrBackendSub = "backend_sub"
)

// Attributes returns the routing attributes published alongside the item so
// the queue can filter without decoding the payload.
func (it Item) Attributes() map[string]string {
	attrs := map[string]string{
		AttrFilter:  it.Filter,
		AttrBackend: it.Backend,
	}
	if it.BackendSub != "" {
		attrs[AttrBackendSub] = it.BackendSub
	}
	return attrs
}

// SourceLabel is the most specific source name known for the item.
func (it Item) SourceLabel() string {
	if it.BackendSub != "" {
		return it.BackendSub
	}
	return it.Backend
}

// MarshalJSON writes schema fields and overflow fields into a single object.
// Keys are emitted in sorted order, so equal items encode to equal bytes.
func (it Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(knownFields)+len(it.Extra))
	for k, v := range it.Extra {
		out[k] = v
	}

	out[FieldBackend] = it.Backend
	out[FieldType] = it.Type
	out[FieldIconURL] = it.IconURL
	out[FieldTimestamp] = it.Timestamp.Format(time.RFC3339Nano)
	out[FieldItemURL] = it.ItemURL
	out[FieldAuthor] = it.Author
	out[FieldText] = it.Text
	out[FieldTitle] = it.Title
	out[FieldTitleType] = it.TitleType
	out[FieldFilter] = it.Filter

	if it.BackendSub != "" {
		out[FieldBackendSub] = it.BackendSub
	}
	if it.ParentAuthor != "" {
		out[FieldParentAuthor] = it.ParentAuthor
	}
	if it.Lang != "" {
		out[FieldLang] = it.Lang
	}
	if it.Meta != nil {
		out[FieldMeta] = it.Meta
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates an item. It is equivalent to DecodeItem.
func (it *Item) UnmarshalJSON(data []byte) error {
	parsed, err := DecodeItem(data)
	if err != nil {
		return err
	}
	*it = parsed
	return nil
}
