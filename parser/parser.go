// Package parser turns source files into ordered blocks for the chunk
// tree builder. Each parser handles one file format; ForPath picks by
// extension.
package parser

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/treeline-rag/treeline/helper"
	"github.com/treeline-rag/treeline/model"
)

// DocumentParser parses one file format into a ParsedDocument.
type DocumentParser interface {
	Parse(path string) (*model.ParsedDocument, error)
}

var parsersByExtension = map[string]struct {
	parser   DocumentParser
	fileType string
}{
	".md":       {&MarkdownParser{}, "markdown"},
	".markdown": {&MarkdownParser{}, "markdown"},
	".txt":      {&MarkdownParser{}, "text"},
	".docx":     {&DocxParser{}, "docx"},
}

// ForPath returns the parser and file type for a path, dispatching on
// the lowercased extension.
func ForPath(path string) (DocumentParser, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	entry, ok := parsersByExtension[ext]
	if !ok {
		return nil, "", helper.NewError("select parser", fmt.Errorf("unsupported file extension %q", ext))
	}
	return entry.parser, entry.fileType, nil
}

// SupportedExtensions lists the handled extensions, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(parsersByExtension))
	for ext := range parsersByExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// IsSupported reports whether the path has a handled extension.
func IsSupported(path string) bool {
	_, ok := parsersByExtension[strings.ToLower(filepath.Ext(path))]
	return ok
}
