package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/treeline-rag/treeline/helper"
	"github.com/treeline-rag/treeline/model"
	loadSql "github.com/treeline-rag/treeline/sql"
)

// RecordsDBHandlerFunctions defines the interface for records database operations.
type RecordsDBHandlerFunctions interface {
	InsertRecords(records []*model.Record) error
	SelectRecordByChunkIndex(chunkIndex int64) (*model.Record, error)
	SelectRecordsBySimilarity(embedding []float32, limit int, contentType string, rawFilter string) ([]*model.Record, error)
	SelectTextRecords(limit int, offset int64) ([]*model.Record, error)
	DeleteRecordsByFilePath(filePath string) (int64, error)
	CountRecords() (int64, error)
	MaxChunkIndex() (int64, error)
	ListFilePaths() ([]*model.DocumentInfo, error)
}

// RecordsDBHandler handles record-related database operations
type RecordsDBHandler struct {
	db *helper.Database
}

// NewRecordsDBHandler creates a new records database handler.
// It initializes the database connection and loads record-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewRecordsDBHandler(db *helper.Database, embeddingDim int, force bool) (*RecordsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	recordsDbHandler := &RecordsDBHandler{
		db: db,
	}

	err := loadSql.LoadRecordsSql(recordsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load records sql", err)
	}

	err = recordsDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized RecordsDBHandler")

	return recordsDbHandler, nil
}

// CreateTable creates the 'records' table in the database.
// If the table already exists, it does not create it again.
func (h *RecordsDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_records($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing records table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table records")

	return nil
}

// InsertRecords inserts all records in one transaction. Content and
// file path are bounded to the schema limits before insert. The
// store-assigned IDs are written back into the records.
func (h *RecordsDBHandler) InsertRecords(records []*model.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := h.db.Instance.Begin()
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	for _, record := range records {
		row := tx.QueryRow(
			`SELECT * FROM insert_record($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			record.ContentType,
			model.TruncateContent(record.Content),
			pgvector.NewVector(record.Embedding),
			model.TruncateFilePath(record.FilePath),
			record.FileType,
			record.ChunkIndex,
			record.ParentID,
			record.ChunkType,
			record.Level,
			record.Metadata,
		)

		var embedding pgvector.Vector
		err := row.Scan(
			&record.ID,
			&record.ContentType,
			&record.Content,
			&embedding,
			&record.FilePath,
			&record.FileType,
			&record.ChunkIndex,
			&record.ParentID,
			&record.ChunkType,
			&record.Level,
			&record.Metadata,
			&record.CreatedAt,
		)
		if err != nil {
			return helper.NewError("scan", err)
		}
		record.Embedding = embedding.Slice()
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit transaction", err)
	}

	return nil
}

// SelectRecordByChunkIndex retrieves the record with the given chunk
// index. Returns nil without error when no record has that index.
func (h *RecordsDBHandler) SelectRecordByChunkIndex(chunkIndex int64) (*model.Record, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_record_by_chunk($1)`,
		chunkIndex,
	)

	record := &model.Record{}
	err := row.Scan(
		&record.ID,
		&record.ContentType,
		&record.Content,
		&record.FilePath,
		&record.FileType,
		&record.ChunkIndex,
		&record.ParentID,
		&record.ChunkType,
		&record.Level,
		&record.Metadata,
		&record.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return record, nil
}

// SelectRecordsBySimilarity performs vector similarity search ordered
// by L2 distance. contentType restricts results to one modality when
// non-empty. rawFilter is an optional SQL boolean expression over the
// records columns, appended verbatim to the candidate query.
func (h *RecordsDBHandler) SelectRecordsBySimilarity(embedding []float32, limit int, contentType string, rawFilter string) ([]*model.Record, error) {
	embeddingVector := pgvector.NewVector(embedding)

	var rows *sql.Rows
	var err error
	if rawFilter != "" {
		// The SQL function cannot take an arbitrary expression, so the
		// filtered variant is built inline.
		query := fmt.Sprintf(
			`SELECT r.id, r.content_type, r.content, r.file_path, r.file_type,
			        r.chunk_index, r.parent_id, r.chunk_type, r.level, r.metadata,
			        r.created_at,
			        (r.embedding <-> $1)::DOUBLE PRECISION AS distance
			 FROM records r
			 WHERE ($2::TEXT IS NULL OR r.content_type = $2)
			   AND (%s)
			 ORDER BY r.embedding <-> $1
			 LIMIT $3`,
			rawFilter,
		)
		rows, err = h.db.Instance.Query(query, embeddingVector, nullableString(contentType), limit)
	} else {
		rows, err = h.db.Instance.Query(
			`SELECT * FROM select_records_by_similarity($1, $2, $3)`,
			embeddingVector,
			limit,
			nullableString(contentType),
		)
	}
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.Record
	for rows.Next() {
		record := &model.Record{}
		err := rows.Scan(
			&record.ID,
			&record.ContentType,
			&record.Content,
			&record.FilePath,
			&record.FileType,
			&record.ChunkIndex,
			&record.ParentID,
			&record.ChunkType,
			&record.Level,
			&record.Metadata,
			&record.CreatedAt,
			&record.Distance,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// SelectTextRecords pages through text records in chunk index order.
// Only ChunkIndex and Content are populated.
func (h *RecordsDBHandler) SelectTextRecords(limit int, offset int64) ([]*model.Record, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_text_records($1, $2)`,
		limit,
		offset,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.Record
	for rows.Next() {
		record := &model.Record{}
		err := rows.Scan(
			&record.ChunkIndex,
			&record.Content,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// DeleteRecordsByFilePath deletes all records of one source file and
// returns the number of deleted records.
func (h *RecordsDBHandler) DeleteRecordsByFilePath(filePath string) (int64, error) {
	var deleted int64
	err := h.db.Instance.QueryRow(
		`SELECT delete_records_by_file_path($1)`,
		filePath,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return deleted, nil
}

// CountRecords returns the total number of records in the collection.
func (h *RecordsDBHandler) CountRecords() (int64, error) {
	var count int64
	err := h.db.Instance.QueryRow(`SELECT count_records()`).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

// MaxChunkIndex returns the highest chunk index in the collection, or
// -1 when the collection is empty.
func (h *RecordsDBHandler) MaxChunkIndex() (int64, error) {
	var max int64
	err := h.db.Instance.QueryRow(`SELECT max_chunk_index()`).Scan(&max)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return max, nil
}

// ListFilePaths returns one entry per ingested source file.
func (h *RecordsDBHandler) ListFilePaths() ([]*model.DocumentInfo, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM list_file_paths()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.DocumentInfo
	for rows.Next() {
		info := &model.DocumentInfo{}
		err := rows.Scan(
			&info.FilePath,
			&info.FileType,
			&info.RecordCount,
			&info.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, info)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
