package treeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treeline-rag/treeline/helper"
	"github.com/treeline-rag/treeline/model"
)

func initKnowledgeBase(t *testing.T) *KnowledgeBase {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)

	kb, err := New(context.Background(), &Options{
		Encoder:        &testEncoder{},
		ForceReloadSQL: true,
		Logger:         discardLogger(),
	})
	require.NoError(t, err, "failed to create knowledge base")
	require.NotNil(t, kb, "expected knowledge base to be non-nil")

	// Tests share one database, start from an empty collection.
	_, err = kb.db.Instance.Exec(`TRUNCATE records RESTART IDENTITY;`)
	require.NoError(t, err)

	t.Cleanup(func() {
		kb.Close()
	})

	return kb
}

func writeMarkdown(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const sampleMarkdown = `# Feline Behavior

Cats purr when they are content and knead soft surfaces with their paws.
Domestic cats communicate through a mix of vocalization and body language.

## Hunting

Cats are crepuscular hunters and stalk their prey in near silence before
pouncing with remarkable precision and speed every single time.

# Canine Behavior

Dogs bark to alert their pack and wag their tails when they are excited.
Most dogs are highly social and form strong bonds with their owners.
`

func TestNew(t *testing.T) {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)

	t.Run("Valid call New", func(t *testing.T) {
		kb, err := New(context.Background(), &Options{
			Encoder: &testEncoder{},
			Logger:  discardLogger(),
		})

		require.NoError(t, err, "Expected New to not return an error")
		require.NotNil(t, kb, "Expected New to return a non-nil instance")
		assert.NotNil(t, kb.db, "Expected knowledge base to have a database instance")
		assert.NotNil(t, kb.records, "Expected knowledge base to have a records handler")
		assert.NotNil(t, kb.engine, "Expected knowledge base to have an engine")
		assert.NotNil(t, kb.pipeline, "Expected knowledge base to have a pipeline")

		err = kb.Close()
		assert.NoError(t, err, "Expected Close to not return an error")
	})
}

func TestAddDocumentAndQuery(t *testing.T) {
	ctx := context.Background()
	kb := initKnowledgeBase(t)

	path := writeMarkdown(t, "behavior.md", sampleMarkdown)

	t.Run("AddDocument ingests the chunk tree", func(t *testing.T) {
		result := kb.AddDocument(ctx, path)

		assert.True(t, result.Success, "Expected ingestion to succeed: %s", result.Message)
		assert.Equal(t, "markdown", result.FileType)
		assert.Greater(t, result.ChunksCount, 3, "Expected root, sections and paragraphs")
	})

	t.Run("Query finds the relevant chunk", func(t *testing.T) {
		results := kb.Query(ctx, "cats purr content", nil)

		require.NotEmpty(t, results, "Expected results for matching vocabulary")
		assert.Contains(t, results[0].Content, "purr", "Expected the purring paragraph on top")
	})

	t.Run("Hierarchical query pulls in context", func(t *testing.T) {
		config := model.DefaultQueryConfig()
		config.TopK = 20

		results := kb.Query(ctx, "stalk their prey", &config)

		require.NotEmpty(t, results)
		types := map[string]bool{}
		for _, result := range results {
			types[result.ChunkType] = true
		}
		assert.True(t, types[string(model.ChunkTypeSection)] || types[string(model.ChunkTypeSubsection)] || types[string(model.ChunkTypeDocument)],
			"Expected structural context chunks alongside paragraphs")
	})

	t.Run("Unsupported file reports failure without error", func(t *testing.T) {
		result := kb.AddDocument(ctx, "presentation.pptx")

		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "unsupported file extension")
	})

	t.Run("Batch continues after a failed file", func(t *testing.T) {
		second := writeMarkdown(t, "more.md", "# More\n\nAnother paragraph about dogs barking at the postal carrier loudly.\n")

		results := kb.AddDocuments(ctx, []string{"broken.xyz", second})

		require.Len(t, results, 2)
		assert.False(t, results[0].Success)
		assert.True(t, results[1].Success, "Expected the batch to continue past the failure")
	})
}

// silentEncoder reports a dimension but returns no vectors.
type silentEncoder struct {
	testEncoder
}

func (e *silentEncoder) EncodeTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{}, nil
}

func TestQueryWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	kb := initKnowledgeBase(t)
	kb.pipeline.Encoder = &silentEncoder{}

	results := kb.Query(ctx, "anything at all", nil)

	assert.NotNil(t, results, "Expected an empty slice, not nil")
	assert.Empty(t, results)
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	kb := initKnowledgeBase(t)

	path := writeMarkdown(t, "behavior.md", sampleMarkdown)
	result := kb.AddDocument(ctx, path)
	require.True(t, result.Success)

	deleted, err := kb.DeleteDocument(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, int64(result.ChunksCount), deleted)

	results := kb.Query(ctx, "cats purr content", nil)
	assert.Empty(t, results, "Expected the deleted document to be unsearchable")
}

func TestListDocumentsAndStats(t *testing.T) {
	ctx := context.Background()
	kb := initKnowledgeBase(t)

	path := writeMarkdown(t, "behavior.md", sampleMarkdown)
	result := kb.AddDocument(ctx, path)
	require.True(t, result.Success)

	documents, err := kb.ListDocuments()
	require.NoError(t, err)
	require.Len(t, documents, 1)
	assert.Equal(t, path, documents[0].FilePath)
	assert.Equal(t, int64(result.ChunksCount), documents[0].RecordCount)

	require.NoError(t, kb.RebuildKeywordIndex())

	stats, err := kb.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(result.ChunksCount), stats.TotalRecords)
	assert.Greater(t, stats.KeywordIndexSize, 0)
}

func TestAddImageFolder(t *testing.T) {
	ctx := context.Background()
	kb := initKnowledgeBase(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cat.jpg"), []byte("fake image bytes"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an image"), 0644))

	inserted, err := kb.AddImageFolder(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted, "Expected only the image to be ingested")

	config := model.DefaultQueryConfig()
	config.ContentType = model.ContentTypeImage
	config.Hierarchical = false

	results := kb.Query(ctx, "cat jpg", &config)
	require.Len(t, results, 1)
	assert.Equal(t, "image", results[0].FileType)
}
