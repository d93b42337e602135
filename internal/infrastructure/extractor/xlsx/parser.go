package xlsx

import (
	"bytes"
	"context"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

// Parse renders every sheet as "sheet: <name>" followed by tab separated rows.
func (p *Parser) Parse(_ context.Context, data []byte) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "open xlsx", err)
	}
	defer func() { _ = book.Close() }()

	var out strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", domain.WrapError(domain.ErrExtractionFailed, "read sheet "+sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString("sheet: ")
		out.WriteString(sheet)
		for _, row := range rows {
			out.WriteString("\n")
			out.WriteString(strings.Join(row, "\t"))
		}
	}
	return out.String(), nil
}
