package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/syncache/internal/record"
)

// List returns every record in collection ordered by id.
//
// Returns an empty slice (not nil) if the collection is empty.
func (s *Store) List(ctx context.Context, collection string) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data FROM records
		WHERE collection = ?
		ORDER BY id ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	recs := []record.Record{}
	for rows.Next() {
		var id int64
		var data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := unmarshalData(id, data)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}

// Get returns one record. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, collection, id string) (record.Record, error) {
	rowID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var data string
	err = s.db.QueryRowContext(ctx, `
		SELECT data FROM records WHERE collection = ? AND id = ?
	`, collection, rowID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	return unmarshalData(rowID, data)
}

// Version returns how many times a record has been written.
func (s *Store) Version(ctx context.Context, collection, id string) (int64, error) {
	rowID, err := parseID(id)
	if err != nil {
		return 0, err
	}
	var v int64
	err = s.db.QueryRowContext(ctx, `
		SELECT version FROM records WHERE collection = ? AND id = ?
	`, collection, rowID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("version %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("version: %w", err)
	}
	return v, nil
}

// Collections returns the names of all non-empty collections, sorted.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT collection FROM records ORDER BY collection ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return names, nil
}
