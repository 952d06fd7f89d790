package model

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document identifies one ingested source file. It carries the
// provenance attached to every persisted record of that file.
type Document struct {
	RID       uuid.UUID `json:"rid"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	FileType  string    `json:"file_type"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentInfo summarizes the persisted records of one source file.
type DocumentInfo struct {
	FilePath    string    `json:"file_path"`
	FileType    string    `json:"file_type"`
	RecordCount int64     `json:"record_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewDocument creates a Document for a source file path. The title
// defaults to the file name without its extension.
func NewDocument(filePath string, fileType string) *Document {
	filename := filepath.Base(filePath)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	if title == "" {
		title = filename
	}

	return &Document{
		RID:       uuid.New(),
		Title:     title,
		Source:    filePath,
		FileType:  fileType,
		CreatedAt: time.Now(),
	}
}
