// Package store is a JSON document store over database/sql. Documents are
// grouped into named collections and addressed by opaque UUID ids.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrNotFound is returned by Patch and Replace when the id does not resolve.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicate is returned by InsertUnique when the key is already taken.
	ErrDuplicate = errors.New("duplicate document key")
)

// Document is a stored JSON body plus the metadata the store assigns.
type Document struct {
	ID         string
	Collection string
	Key        *string
	Body       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Decode unmarshals the document body into v.
func (d *Document) Decode(v any) error {
	if err := json.Unmarshal(d.Body, v); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// Filter matches documents whose top-level string field equals Value.
type Filter struct {
	Field string
	Value string
}

// Eq builds an equality filter.
func Eq(field, value string) Filter {
	return Filter{Field: field, Value: value}
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (f Filter) validate() error {
	if !fieldName.MatchString(f.Field) {
		return fmt.Errorf("invalid filter field %q", f.Field)
	}
	return nil
}

// Ops is the set of document operations available both on the store and
// inside a transaction.
type Ops interface {
	Insert(ctx context.Context, collection string, doc any) (string, error)
	InsertUnique(ctx context.Context, collection, key string, doc any) (string, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Patch(ctx context.Context, collection, id string, fields map[string]any) error
	Replace(ctx context.Context, collection, id string, doc any) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
}

// Store is a document store that can also run operations atomically.
type Store interface {
	Ops
	RunInTx(ctx context.Context, fn func(Ops) error) error
	Close() error
}

// encodeObject marshals doc and checks that it is a JSON object.
func encodeObject(doc any) ([]byte, error) {
	if raw, ok := doc.(json.RawMessage); ok {
		return checkObject(raw)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return checkObject(data)
}

func checkObject(data []byte) ([]byte, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	return data, nil
}

// mergeFields applies a shallow patch to a JSON object. A nil value removes
// the key.
func mergeFields(body []byte, fields map[string]any) ([]byte, error) {
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decoding stored body: %w", err)
	}
	for k, v := range fields {
		if v == nil {
			delete(obj, k)
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding field %s: %w", k, err)
		}
		if string(data) == "null" {
			delete(obj, k)
			continue
		}
		obj[k] = data
	}
	return json.Marshal(obj)
}
