package literecord

import (
	"encoding/json"
	"maps"
	"strings"

	"github.com/spf13/cast"
)

const pivotPrefix = "_pivot_"

// Standard timestamp columns.
const (
	ColCreatedAt  = "created_at"
	ColUpdatedAt  = "updated_at"
	ColDeletedAt  = "deleted_at"
	ColRestoredAt = "restored_at"
)

// Record is one row of a schema's table.
//
// Declared attributes and "_pivot_" columns are kept as attributes. Any
// other value handed to NewRecord is kept as a static virtual, and values
// keyed by a relation name are kept as related payloads.
type Record struct {
	schema   *Schema
	attrs    map[string]any
	virtuals map[string]any
	related  map[string]any
}

// NewRecord builds a record of schema s from values.
func NewRecord(s *Schema, values map[string]any) *Record {
	r := &Record{
		schema:   s,
		attrs:    make(map[string]any),
		virtuals: make(map[string]any),
		related:  make(map[string]any),
	}
	declared := len(s.Visible) > 0 || len(s.Hidden) > 0
	for k, v := range values {
		switch {
		case strings.HasPrefix(k, pivotPrefix):
			r.attrs[k] = v
		case s.HasRelation(k):
			r.related[k] = v
		case !declared || s.HasAttribute(k):
			r.attrs[k] = v
		default:
			r.virtuals[k] = v
		}
	}
	return r
}

// Schema returns the record's schema.
func (r *Record) Schema() *Schema { return r.schema }

// Get returns an attribute value, nil when unset.
func (r *Record) Get(attr string) any { return r.attrs[attr] }

// lookup returns an attribute, falling back to stored virtuals.
func (r *Record) lookup(key string) any {
	if v, ok := r.attrs[key]; ok {
		return v
	}
	return r.virtuals[key]
}

// Has reports whether attr is set, even to nil.
func (r *Record) Has(attr string) bool {
	_, ok := r.attrs[attr]
	return ok
}

// Set assigns an attribute, a related payload or a static virtual,
// following the same rules as NewRecord.
func (r *Record) Set(key string, value any) *Record {
	declared := len(r.schema.Visible) > 0 || len(r.schema.Hidden) > 0
	switch {
	case strings.HasPrefix(key, pivotPrefix), !declared, r.schema.HasAttribute(key):
		r.attrs[key] = value
	case r.schema.HasRelation(key):
		r.related[key] = value
	default:
		r.virtuals[key] = value
	}
	return r
}

// Attributes returns a copy of the attribute values, pivots included.
func (r *Record) Attributes() map[string]any {
	return maps.Clone(r.attrs)
}

// Related returns the payload loaded for a relation.
func (r *Record) Related(name string) (any, bool) {
	v, ok := r.related[name]
	return v, ok
}

// ID returns the primary key value: a scalar for a simple key, a map keyed
// by attribute for a composite one.
func (r *Record) ID() any {
	if !r.schema.IsComposite() {
		return r.attrs[r.schema.PrimaryKey()]
	}
	return r.IDObject()
}

// IDObject returns the primary key as attribute/value pairs.
func (r *Record) IDObject() map[string]any {
	id := make(map[string]any, len(r.schema.ID))
	for _, attr := range r.schema.ID {
		id[attr] = r.attrs[attr]
	}
	return id
}

// Virtual returns the value of a virtual attribute. A stored value of the
// same name wins over the computed one.
func (r *Record) Virtual(name string) any {
	if v, ok := r.virtuals[name]; ok && v != nil {
		return v
	}
	if fn, ok := r.schema.Virtuals[name]; ok {
		return fn(r)
	}
	return nil
}

// IsDeleted reports whether the record was soft deleted after it was last
// restored.
func (r *Record) IsDeleted() bool {
	deleted, err := cast.ToTimeE(r.attrs[ColDeletedAt])
	if r.attrs[ColDeletedAt] == nil || err != nil {
		return false
	}
	if r.attrs[ColRestoredAt] == nil {
		return true
	}
	restored, err := cast.ToTimeE(r.attrs[ColRestoredAt])
	if err != nil {
		return true
	}
	return deleted.After(restored)
}

// SerializeOptions tune Serialize. The zero value includes virtuals,
// related payloads and unprefixed pivots.
type SerializeOptions struct {
	Shallow      bool
	OmitPivot    bool
	OmitVirtuals bool
}

// Serialize renders the record for output. Hidden attributes are removed.
func (r *Record) Serialize(opts SerializeOptions) map[string]any {
	out := make(map[string]any, len(r.attrs))

	if !opts.OmitVirtuals {
		for name := range r.schema.Virtuals {
			out[name] = r.Virtual(name)
		}
		for name := range r.virtuals {
			out[name] = r.Virtual(name)
		}
	}
	for k, v := range r.attrs {
		if !strings.HasPrefix(k, pivotPrefix) {
			out[k] = v
		}
	}
	if !opts.Shallow {
		for name, payload := range r.related {
			out[name] = serializeRelated(payload, opts)
		}
	}
	for _, attr := range r.schema.Hidden {
		delete(out, attr)
	}
	if !opts.OmitPivot {
		for k, v := range r.attrs {
			if name, ok := strings.CutPrefix(k, pivotPrefix); ok {
				out[name] = v
			}
		}
	}
	return out
}

func serializeRelated(payload any, opts SerializeOptions) any {
	switch v := payload.(type) {
	case *Record:
		return v.Serialize(opts)
	case []*Record:
		out := make([]map[string]any, len(v))
		for i, rec := range v {
			out[i] = rec.Serialize(opts)
		}
		return out
	}
	return payload
}

// MarshalJSON encodes Serialize with default options.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Serialize(SerializeOptions{}))
}

// Validate checks the record against its schema's rules.
func (r *Record) Validate() error {
	return validateRecord(r)
}

// IsValid reports whether Validate passes.
func (r *Record) IsValid() bool {
	return r.Validate() == nil
}
