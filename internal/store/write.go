package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/syncache/internal/record"
)

// Insert adds rec to collection and returns it with its assigned id.
// Any id carried by rec is ignored.
func (s *Store) Insert(ctx context.Context, collection string, rec record.Record) (record.Record, error) {
	data, err := marshalData(rec)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO records (collection, data)
		VALUES (?, ?)
	`, collection, data)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	return unmarshalData(id, data)
}

// Update merges partial into the stored record and returns the result.
// Returns ErrNotFound if the record does not exist in collection.
func (s *Store) Update(ctx context.Context, collection, id string, partial record.Record) (record.Record, error) {
	rowID, err := parseID(id)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update: begin: %w", err)
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, `
		SELECT data FROM records WHERE collection = ? AND id = ?
	`, collection, rowID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	current, err := unmarshalData(rowID, data)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	merged := current.Merge(partial)
	next, err := marshalData(merged)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE records SET data = ?, version = version + 1
		WHERE collection = ? AND id = ?
	`, next, collection, rowID); err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update: commit: %w", err)
	}
	return merged, nil
}

// Delete removes the record. Returns ErrNotFound if it does not exist.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	rowID, err := parseID(id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE collection = ? AND id = ?
	`, collection, rowID)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}
