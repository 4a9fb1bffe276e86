package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops implements Ops over either the pool or a transaction.
type ops struct {
	q querier
	d dialect
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

// Insert stores doc under a fresh id.
func (o ops) Insert(ctx context.Context, collection string, doc any) (string, error) {
	return o.insert(ctx, collection, nil, doc)
}

// InsertUnique stores doc under a fresh id, claiming key within the
// collection. It fails with ErrDuplicate if the key is taken.
func (o ops) InsertUnique(ctx context.Context, collection, key string, doc any) (string, error) {
	if key == "" {
		return "", fmt.Errorf("insert into %s: empty unique key", collection)
	}
	return o.insert(ctx, collection, &key, doc)
}

func (o ops) insert(ctx context.Context, collection string, key *string, doc any) (string, error) {
	body, err := encodeObject(doc)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	ts := now()
	_, err = o.q.ExecContext(ctx, o.d.rebind(
		`INSERT INTO documents (id, collection, unique_key, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`),
		id, collection, key, string(body), ts, ts,
	)
	if err != nil {
		if key != nil && o.d.unique(err) {
			return "", fmt.Errorf("insert into %s key %s: %w", collection, *key, ErrDuplicate)
		}
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return id, nil
}

// Get returns the document, or nil if it does not exist.
func (o ops) Get(ctx context.Context, collection, id string) (*Document, error) {
	row := o.q.QueryRowContext(ctx, o.d.rebind(
		`SELECT id, collection, unique_key, body, created_at, updated_at
		FROM documents WHERE collection = ? AND id = ?`),
		collection, id,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Patch merges fields into the stored body.
func (o ops) Patch(ctx context.Context, collection, id string, fields map[string]any) error {
	existing, err := o.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("patch %s/%s: %w", collection, id, ErrNotFound)
	}
	if len(fields) == 0 {
		return nil
	}
	body, err := mergeFields(existing.Body, fields)
	if err != nil {
		return fmt.Errorf("patch %s/%s: %w", collection, id, err)
	}
	return o.write(ctx, collection, id, body)
}

// Replace overwrites the body, keeping id and created_at.
func (o ops) Replace(ctx context.Context, collection, id string, doc any) error {
	body, err := encodeObject(doc)
	if err != nil {
		return err
	}
	return o.write(ctx, collection, id, body)
}

func (o ops) write(ctx context.Context, collection, id string, body []byte) error {
	res, err := o.q.ExecContext(ctx, o.d.rebind(
		`UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?`),
		string(body), now(), collection, id,
	)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// Delete removes a document. Deleting a missing id is not an error.
func (o ops) Delete(ctx context.Context, collection, id string) error {
	_, err := o.q.ExecContext(ctx, o.d.rebind(
		`DELETE FROM documents WHERE collection = ? AND id = ?`), collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Query returns all documents in collection matching every filter, oldest
// first.
func (o ops) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	where := []string{"collection = ?"}
	args := []any{collection}
	for _, f := range filters {
		if err := f.validate(); err != nil {
			return nil, err
		}
		where = append(where, o.d.jsonText(f.Field)+" = ?")
		args = append(args, f.Value)
	}

	query := fmt.Sprintf(
		`SELECT id, collection, unique_key, body, created_at, updated_at
		FROM documents WHERE %s ORDER BY created_at, id`, strings.Join(where, " AND "))

	rows, err := o.q.QueryContext(ctx, o.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*Document, error) {
	var d Document
	var body, created, updated string
	if err := s.Scan(&d.ID, &d.Collection, &d.Key, &body, &created, &updated); err != nil {
		return nil, err
	}
	d.Body = []byte(body)
	d.CreatedAt, _ = time.Parse(timeLayout, created)
	d.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &d, nil
}
