package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

// Parse returns the plain text of every page. The underlying reader panics on
// some malformed inputs, so panics are turned into extraction errors.
func (p *Parser) Parse(_ context.Context, data []byte) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = domain.WrapError(domain.ErrExtractionFailed, "parse pdf", fmt.Errorf("corrupt pdf: %v", rec))
		}
	}()

	reader, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "open pdf", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "read pdf text", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "read pdf text", err)
	}
	return buf.String(), nil
}
