package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// SQLStore implements Store on database/sql. The SQLite and MySQL
// constructors differ only in how they connect and upsert.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc_value FROM documents WHERE doc_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document[%s]: %w", key, err)
	}
	return value, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO documents (doc_key, doc_value, updated_at) VALUES (?, ?, ?)
			  ON CONFLICT(doc_key) DO UPDATE SET doc_value = excluded.doc_value, updated_at = excluded.updated_at`
	if s.dialect == "mysql" {
		query = `INSERT INTO documents (doc_key, doc_value, updated_at) VALUES (?, ?, ?)
			  ON DUPLICATE KEY UPDATE doc_value = VALUES(doc_value), updated_at = VALUES(updated_at)`
	}
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to put document[%s]: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete document[%s]: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc_key FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan document key: %w", err)
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *SQLStore) CreateConflict(ctx context.Context, conflict *Conflict) error {
	query := `INSERT INTO conflicts (id, resource, resource_id, local_data, remote_data, conflict_type, detected_at, resolved)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		conflict.ID,
		conflict.Resource,
		conflict.ResourceID,
		nullableJSON(conflict.LocalData),
		nullableJSON(conflict.RemoteData),
		conflict.ConflictType,
		conflict.DetectedAt.UTC(),
		conflict.Resolved,
	)
	if err != nil {
		return fmt.Errorf("failed to create conflict: %w", err)
	}
	return nil
}

const conflictColumns = `id, resource, resource_id, local_data, remote_data, conflict_type, detected_at, resolved, resolution_strategy, resolved_at, resolved_data`

type scanner interface {
	Scan(dest ...any) error
}

func scanConflict(row scanner) (*Conflict, error) {
	var c Conflict
	var local, remote, resolved []byte
	err := row.Scan(
		&c.ID,
		&c.Resource,
		&c.ResourceID,
		&local,
		&remote,
		&c.ConflictType,
		&c.DetectedAt,
		&c.Resolved,
		&c.ResolutionStrategy,
		&c.ResolvedAt,
		&resolved,
	)
	if err != nil {
		return nil, err
	}
	c.LocalData = local
	c.RemoteData = remote
	c.ResolvedData = resolved
	return &c, nil
}

func (s *SQLStore) GetConflict(ctx context.Context, id string) (*Conflict, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id = ?`, id)

	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict[%s]: %w", id, err)
	}
	return c, nil
}

func (s *SQLStore) ListConflicts(ctx context.Context, resolved bool, limit, offset int) ([]*Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE resolved = ? ORDER BY detected_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, resolved, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

func (s *SQLStore) ResolveConflict(ctx context.Context, id string, strategy string, resolvedData []byte) error {
	query := `UPDATE conflicts SET resolved = ?, resolution_strategy = ?, resolved_data = ?, resolved_at = ? WHERE id = ?`

	_, err := s.db.ExecContext(ctx, query, true, strategy, nullableJSON(resolvedData), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict[%s]: %w", id, err)
	}
	return nil
}

func (s *SQLStore) CreateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `INSERT INTO sync_history (id, started_at, completed_at, trigger_source, processed, failed, status, error_message)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		history.ID,
		history.StartedAt.UTC(),
		history.CompletedAt,
		history.Trigger,
		history.Processed,
		history.Failed,
		history.Status,
		history.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync history: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `UPDATE sync_history SET completed_at = ?, processed = ?, failed = ?, status = ?, error_message = ? WHERE id = ?`

	_, err := s.db.ExecContext(ctx, query,
		history.CompletedAt,
		history.Processed,
		history.Failed,
		history.Status,
		history.ErrorMessage,
		history.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync history[%s]: %w", history.ID, err)
	}
	return nil
}

func (s *SQLStore) GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error) {
	query := `SELECT id, started_at, completed_at, trigger_source, processed, failed, status, error_message
			  FROM sync_history ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync history: %w", err)
	}
	defer rows.Close()

	var history []*SyncHistory
	for rows.Next() {
		var h SyncHistory
		err := rows.Scan(
			&h.ID,
			&h.StartedAt,
			&h.CompletedAt,
			&h.Trigger,
			&h.Processed,
			&h.Failed,
			&h.Status,
			&h.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync history: %w", err)
		}
		history = append(history, &h)
	}
	return history, rows.Err()
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
