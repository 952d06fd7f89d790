package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/treeline-rag/treeline/helper"
)

// ErrNoIndex is returned when a search requires the vector index and
// the records table does not have one.
var ErrNoIndex = errors.New("no vector index on records")

const vectorIndexName = "idx_records_embedding"

// HasVectorIndex reports whether the records table carries its vector index.
func (h *RecordsDBHandler) HasVectorIndex(ctx context.Context) (bool, error) {
	var exists bool
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM pg_indexes WHERE tablename = 'records' AND indexname = $1);`,
		vectorIndexName,
	).Scan(&exists)
	if err != nil {
		return false, helper.NewError("check index", err)
	}
	return exists, nil
}

// EnsureVectorIndex checks the vector index and fails with ErrNoIndex
// when it is missing. Searches against an unindexed collection are
// refused rather than silently scanning.
func (h *RecordsDBHandler) EnsureVectorIndex(ctx context.Context) error {
	exists, err := h.HasVectorIndex(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNoIndex
	}
	return nil
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
// indexType: "hnsw" or "ivfflat"
// params: optional parameters for index creation
//   - For HNSW: "m" (int, default 16), "ef_construction" (int, default 64)
//   - For IVFFlat: "lists" (int, default 128)
func (h *RecordsDBHandler) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	// Drop existing index
	_, err := h.db.Instance.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s;`, vectorIndexName))
	if err != nil {
		return helper.NewError("drop index", err)
	}

	h.db.Logger.Info("Dropped existing vector index")

	// Create new index based on type
	var createIndexSQL string

	switch indexType {
	case "hnsw":
		m := 16
		efConstruction := 64

		if mVal, ok := params["m"].(int); ok {
			m = mVal
		}
		if efVal, ok := params["ef_construction"].(int); ok {
			efConstruction = efVal
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX %s ON records USING hnsw (embedding vector_l2_ops) WITH (m = %d, ef_construction = %d);`,
			vectorIndexName, m, efConstruction,
		)

	case "ivfflat":
		lists := 128
		if listsVal, ok := params["lists"].(int); ok {
			lists = listsVal
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX %s ON records USING ivfflat (embedding vector_l2_ops) WITH (lists = %d);`,
			vectorIndexName, lists,
		)

	default:
		return helper.NewError("change index type", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType))
	}

	// Create the new index
	_, err = h.db.Instance.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	h.db.Logger.Info(fmt.Sprintf("Created %s index with params: %v", indexType, params))

	return nil
}

// CreateVectorIndex creates the default IVFFlat index if none exists.
func (h *RecordsDBHandler) CreateVectorIndex(ctx context.Context) error {
	exists, err := h.HasVectorIndex(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return h.ChangeIndexType(ctx, "ivfflat", nil)
}
