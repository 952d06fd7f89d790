package parser

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/treeline-rag/treeline/helper"
	"github.com/treeline-rag/treeline/model"
)

// DocxParser parses the main document part of a .docx archive.
// Paragraphs styled HeadingN become heading blocks with level N, table
// rows are flattened to " | "-joined text, everything else becomes
// paragraph blocks.
type DocxParser struct{}

var headingStylePattern = regexp.MustCompile(`(?i)^heading\s*(\d+)$`)

// Parse reads and parses the file at path.
func (p *DocxParser) Parse(path string) (*model.ParsedDocument, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, helper.NewError("open docx archive", err)
	}
	defer archive.Close()

	var document io.ReadCloser
	for _, file := range archive.File {
		if file.Name == "word/document.xml" {
			document, err = file.Open()
			if err != nil {
				return nil, helper.NewError("open document part", err)
			}
			break
		}
	}
	if document == nil {
		return nil, helper.NewError("open document part", fmt.Errorf("word/document.xml not found in %s", path))
	}
	defer document.Close()

	doc := &model.ParsedDocument{
		Title:    titleFromPath(path),
		FilePath: path,
		FileType: "docx",
	}

	blocks, err := parseDocumentXML(document)
	if err != nil {
		return nil, err
	}
	doc.Blocks = blocks

	return doc, nil
}

// parseDocumentXML walks the WordprocessingML token stream. Only
// top-level paragraphs and tables are emitted; paragraphs inside a
// table contribute to the table block instead.
func parseDocumentXML(r io.Reader) ([]model.Block, error) {
	decoder := xml.NewDecoder(r)

	var blocks []model.Block
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, helper.NewError("decode document xml", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "p":
			text, style, err := parseParagraph(decoder, start)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			if level := headingStyleLevel(style); level > 0 {
				blocks = append(blocks, model.Block{
					Type:  model.BlockTypeHeading,
					Text:  text,
					Level: level,
				})
			} else {
				blocks = append(blocks, model.Block{
					Type: model.BlockTypeParagraph,
					Text: text,
				})
			}

		case "tbl":
			text, err := parseTable(decoder, start)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			blocks = append(blocks, model.Block{
				Type: model.BlockTypeTable,
				Text: text,
			})
		}
	}

	return blocks, nil
}

// parseParagraph collects the run text and the paragraph style of one
// w:p element.
func parseParagraph(decoder *xml.Decoder, start xml.StartElement) (string, string, error) {
	var text strings.Builder
	var style string

	depth := 1
	for depth > 0 {
		token, err := decoder.Token()
		if err != nil {
			return "", "", helper.NewError("decode paragraph", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "pStyle":
				for _, attr := range t.Attr {
					if attr.Name.Local == "val" {
						style = attr.Value
					}
				}
			case "t":
				var runText string
				if err := decoder.DecodeElement(&runText, &t); err != nil {
					return "", "", helper.NewError("decode run text", err)
				}
				depth--
				text.WriteString(runText)
			case "tab":
				text.WriteString("\t")
			case "br", "cr":
				text.WriteString("\n")
			}
		case xml.EndElement:
			depth--
		}
	}

	return strings.TrimSpace(text.String()), style, nil
}

// parseTable flattens one w:tbl element: cells joined by " | ", rows by
// newlines.
func parseTable(decoder *xml.Decoder, start xml.StartElement) (string, error) {
	var rows []string
	var cells []string
	var cell strings.Builder
	inCell := false

	depth := 1
	for depth > 0 {
		token, err := decoder.Token()
		if err != nil {
			return "", helper.NewError("decode table", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "tc":
				inCell = true
				cell.Reset()
			case "t":
				var runText string
				if err := decoder.DecodeElement(&runText, &t); err != nil {
					return "", helper.NewError("decode run text", err)
				}
				depth--
				if inCell {
					cell.WriteString(runText)
				}
			}
		case xml.EndElement:
			depth--
			switch t.Name.Local {
			case "tc":
				inCell = false
				cells = append(cells, strings.TrimSpace(cell.String()))
			case "tr":
				if len(cells) > 0 {
					rows = append(rows, strings.Join(cells, " | "))
					cells = nil
				}
			}
		}
	}

	return strings.Join(rows, "\n"), nil
}

// headingStyleLevel maps a paragraph style id like "Heading2" to its
// level, 0 when the style is not a heading.
func headingStyleLevel(style string) int {
	match := headingStylePattern.FindStringSubmatch(style)
	if match == nil {
		return 0
	}
	level, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return level
}
