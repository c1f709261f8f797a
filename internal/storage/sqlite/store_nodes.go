package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stakehaus/fairplane/internal/governance"
	"github.com/stakehaus/fairplane/internal/ledger"
	"github.com/stakehaus/fairplane/internal/storage"
)

// EnsureNode atomically finds-or-creates a node. Concurrent callers all
// observe the row that won the insert.
func (s *Store) EnsureNode(ctx context.Context, node governance.Node) (governance.Node, error) {
	if err := ctx.Err(); err != nil {
		return governance.Node{}, err
	}
	if s == nil || s.sqlDB == nil {
		return governance.Node{}, fmt.Errorf("storage is not configured")
	}
	if node.Name == "" {
		return governance.Node{}, fmt.Errorf("node name is required")
	}
	if node.ChangedAt.IsZero() {
		node.ChangedAt = time.Now().UTC()
	}

	paramsJSON, err := marshalParams(node.Params)
	if err != nil {
		return governance.Node{}, err
	}

	if _, err := s.sqlDB.ExecContext(ctx, `INSERT INTO protocol_nodes
		(name, status, params_json, changed_at, changed_by, reason, pending_json, version)
		VALUES (?, ?, ?, ?, ?, ?, NULL, 1)
		ON CONFLICT(name) DO NOTHING`,
		node.Name, string(node.Status), paramsJSON,
		toMillis(node.ChangedAt), node.ChangedBy, node.Reason,
	); err != nil {
		return governance.Node{}, fmt.Errorf("ensure node: %w", err)
	}

	return s.GetNode(ctx, node.Name)
}

const nodeColumns = "name, status, params_json, changed_at, changed_by, reason, pending_json, version"

func scanNode(row interface{ Scan(...any) error }) (governance.Node, error) {
	var node governance.Node
	var status string
	var paramsJSON []byte
	var changedAt int64
	var pendingJSON []byte
	err := row.Scan(&node.Name, &status, &paramsJSON, &changedAt, &node.ChangedBy, &node.Reason, &pendingJSON, &node.Version)
	if err != nil {
		return governance.Node{}, err
	}
	node.Status = governance.NodeStatus(status)
	node.ChangedAt = fromMillis(changedAt)
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &node.Params); err != nil {
			return governance.Node{}, fmt.Errorf("decode node params: %w", err)
		}
	}
	if node.Params == nil {
		node.Params = map[string]string{}
	}
	if len(pendingJSON) > 0 {
		var pending governance.PendingAction
		if err := json.Unmarshal(pendingJSON, &pending); err != nil {
			return governance.Node{}, fmt.Errorf("decode pending action: %w", err)
		}
		node.Pending = &pending
	}
	return node, nil
}

// GetNode loads a node by name.
func (s *Store) GetNode(ctx context.Context, name string) (governance.Node, error) {
	if err := ctx.Err(); err != nil {
		return governance.Node{}, err
	}
	if s == nil || s.sqlDB == nil {
		return governance.Node{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM protocol_nodes WHERE name = ?", name)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return governance.Node{}, storage.ErrNotFound
	}
	if err != nil {
		return governance.Node{}, fmt.Errorf("get node: %w", err)
	}
	return node, nil
}

// ListNodes returns all nodes ordered by name.
func (s *Store) ListNodes(ctx context.Context) ([]governance.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, "SELECT "+nodeColumns+" FROM protocol_nodes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []governance.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}

// UpdateNode compare-and-sets a node against expectedVersion and optionally
// appends a ledger entry in the same transaction. Two racers both reaching
// the same decision still produce exactly one stored mutation and one entry;
// the loser gets ErrVersionConflict and must re-read.
func (s *Store) UpdateNode(ctx context.Context, node governance.Node, expectedVersion uint64, entry *ledger.Entry) (governance.Node, *ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return governance.Node{}, nil, err
	}
	if s == nil || s.sqlDB == nil {
		return governance.Node{}, nil, fmt.Errorf("storage is not configured")
	}

	paramsJSON, err := marshalParams(node.Params)
	if err != nil {
		return governance.Node{}, nil, err
	}
	var pendingJSON []byte
	if node.Pending != nil {
		pendingJSON, err = json.Marshal(node.Pending)
		if err != nil {
			return governance.Node{}, nil, fmt.Errorf("encode pending action: %w", err)
		}
	}

	if entry != nil {
		s.appendMu.Lock()
		defer s.appendMu.Unlock()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return governance.Node{}, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE protocol_nodes
		SET status = ?, params_json = ?, changed_at = ?, changed_by = ?, reason = ?, pending_json = ?, version = version + 1
		WHERE name = ? AND version = ?`,
		string(node.Status), paramsJSON, toMillis(node.ChangedAt), node.ChangedBy,
		node.Reason, pendingJSON, node.Name, expectedVersion,
	)
	if err != nil {
		return governance.Node{}, nil, fmt.Errorf("update node: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return governance.Node{}, nil, fmt.Errorf("update node rows: %w", err)
	}
	if affected == 0 {
		return governance.Node{}, nil, storage.ErrVersionConflict
	}
	node.Version = expectedVersion + 1

	var storedEntry *ledger.Entry
	if entry != nil {
		stored, err := s.appendEntryTx(ctx, tx, *entry)
		if err != nil {
			return governance.Node{}, nil, err
		}
		storedEntry = &stored
	}

	if err := tx.Commit(); err != nil {
		return governance.Node{}, nil, fmt.Errorf("commit: %w", err)
	}
	return node, storedEntry, nil
}

func marshalParams(params map[string]string) ([]byte, error) {
	if params == nil {
		params = map[string]string{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode node params: %w", err)
	}
	return data, nil
}
