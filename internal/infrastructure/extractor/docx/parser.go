package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const documentPart = "word/document.xml"

var errLegacyDoc = errors.New("legacy .doc is not supported, convert to .docx")

type Parser struct {
	legacy bool
}

func New() *Parser {
	return &Parser{}
}

// NewLegacy handles files uploaded with a .doc extension. Those are parsed as
// OOXML when they really are; binary Word 97 files are rejected.
func NewLegacy() *Parser {
	return &Parser{legacy: true}
}

func (p *Parser) Parse(_ context.Context, data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if p.legacy {
			return "", domain.WrapError(domain.ErrExtractionFailed, "parse doc", errLegacyDoc)
		}
		return "", domain.WrapError(domain.ErrExtractionFailed, "open docx archive", err)
	}

	for _, file := range reader.File {
		if file.Name != documentPart {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", domain.WrapError(domain.ErrExtractionFailed, "open "+documentPart, err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", domain.WrapError(domain.ErrExtractionFailed, "read "+documentPart, err)
		}
		return parseDocumentXML(content)
	}
	return "", domain.WrapError(domain.ErrExtractionFailed, "parse docx", fmt.Errorf("%s not found", documentPart))
}

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "decode "+documentPart, err)
	}

	var out strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			out.WriteString("\n")
		}
		for _, r := range para.Runs {
			for _, t := range r.Text {
				out.WriteString(t.Content)
			}
		}
	}
	return out.String(), nil
}
