package database

import (
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/treeline-rag/treeline/helper"
	loadSql "github.com/treeline-rag/treeline/sql"
)

var dbPort string

func TestMain(m *testing.M) {
	var teardown func(ctx context.Context, opts ...testcontainers.TerminateOption) error
	var err error
	teardown, dbPort, err = helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("error starting postgres container: %v", err)
	}

	m.Run()

	if teardown != nil && teardown(context.Background()) != nil {
		log.Fatalf("error tearing down postgres container: %v", err)
	}
}

func initDB(t *testing.T) *helper.Database {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")
	db := helper.NewTestDatabase(dbConfig)

	err = loadSql.Init(db.Instance)
	require.NoError(t, err)

	return db
}

func initHandler(t *testing.T) *RecordsDBHandler {
	db := initDB(t)

	handler, err := NewRecordsDBHandler(db, 4, true)
	require.NoError(t, err)

	// Tests share one database, start from an empty collection.
	_, err = db.Instance.Exec(`TRUNCATE records RESTART IDENTITY;`)
	require.NoError(t, err)

	return handler
}

func testEmbedding(seed float32) []float32 {
	return []float32{seed, seed + 1, seed + 2, seed + 3}
}
