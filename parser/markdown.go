package parser

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/treeline-rag/treeline/helper"
	"github.com/treeline-rag/treeline/model"
)

// MarkdownParser parses markdown (and plain text) into blocks. ATX
// headings become heading blocks with their level, fenced code becomes
// code blocks, pipe-table runs become table blocks, everything else is
// grouped into paragraphs separated by blank lines.
type MarkdownParser struct{}

// Parse reads and parses the file at path.
func (p *MarkdownParser) Parse(path string) (*model.ParsedDocument, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, helper.NewError("open markdown file", err)
	}
	defer file.Close()

	doc := &model.ParsedDocument{
		Title:    titleFromPath(path),
		FilePath: path,
		FileType: "markdown",
	}
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		doc.FileType = "text"
	}

	var paragraph []string
	var table []string
	var code []string
	inCode := false

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		doc.Blocks = append(doc.Blocks, model.Block{
			Type: model.BlockTypeParagraph,
			Text: strings.Join(paragraph, "\n"),
		})
		paragraph = nil
	}
	flushTable := func() {
		if len(table) == 0 {
			return
		}
		doc.Blocks = append(doc.Blocks, model.Block{
			Type: model.BlockTypeTable,
			Text: strings.Join(table, "\n"),
		})
		table = nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if inCode {
			if strings.HasPrefix(trimmed, "```") {
				inCode = false
				doc.Blocks = append(doc.Blocks, model.Block{
					Type: model.BlockTypeCode,
					Text: strings.Join(code, "\n"),
				})
				code = nil
				continue
			}
			code = append(code, line)
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "```"):
			flushParagraph()
			flushTable()
			inCode = true

		case strings.HasPrefix(trimmed, "#"):
			flushParagraph()
			flushTable()
			level := headingLevel(trimmed)
			if level == 0 {
				// not a heading after all, e.g. "#hashtag"
				paragraph = append(paragraph, line)
				continue
			}
			doc.Blocks = append(doc.Blocks, model.Block{
				Type:  model.BlockTypeHeading,
				Text:  strings.TrimSpace(trimmed[level:]),
				Level: level,
			})

		case strings.HasPrefix(trimmed, "|"):
			flushParagraph()
			table = append(table, trimmed)

		case trimmed == "":
			flushParagraph()
			flushTable()

		default:
			flushTable()
			paragraph = append(paragraph, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, helper.NewError("read markdown file", err)
	}

	if inCode && len(code) > 0 {
		// unterminated fence, keep the content
		doc.Blocks = append(doc.Blocks, model.Block{
			Type: model.BlockTypeCode,
			Text: strings.Join(code, "\n"),
		})
	}
	flushParagraph()
	flushTable()

	return doc, nil
}

// headingLevel counts the leading '#' runes of an ATX heading line and
// returns 0 when the line is not a heading (no space after the marker,
// or more than six markers).
func headingLevel(line string) int {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 {
		return 0
	}
	if level == len(line) {
		return level
	}
	if line[level] != ' ' && line[level] != '\t' {
		return 0
	}
	return level
}

func titleFromPath(path string) string {
	filename := filepath.Base(path)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	if title == "" {
		return filename
	}
	return title
}
