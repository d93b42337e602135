package plaintext

import (
	"bytes"
	"context"
	"errors"
	"unicode/utf8"

	"github.com/kirillkom/docqa/internal/core/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", domain.WrapError(domain.ErrExtractionFailed, "parse text", errors.New("file is not valid utf-8"))
	}
	return string(data), nil
}
