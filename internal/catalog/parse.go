package catalog

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/stocktake-backend/pkg/errors"
)

// ParseResult is the outcome of validating and de-duplicating a raw batch.
type ParseResult struct {
	Rows       []Row
	TotalRows  int
	Duplicates int
}

// ParseRows validates a raw batch and collapses duplicate
// (owner, area, material code) rows, keeping the first occurrence.
// Nothing is returned unless the whole batch is valid.
func ParseRows(raw []map[string]string) (*ParseResult, error) {
	if len(raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyBatch, "no rows to ingest")
	}

	rows := make([]normalizedRow, len(raw))
	for i, r := range raw {
		rows[i] = normalizeRow(r)
	}

	for _, field := range RequiredFields {
		if !anyHasField(rows, field) {
			return nil, pkgerrors.New(pkgerrors.CodeMissingField, fmt.Sprintf("missing required column %s", field)).
				WithDetails(map[string]any{"field": string(field)})
		}
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([]Row, 0, len(rows))
	for i, nr := range rows {
		row := nr.toRow()
		if row.MaterialCode == "" {
			return nil, pkgerrors.New(pkgerrors.CodeMissingField, fmt.Sprintf("row %d has an empty %s", i+1, FieldMaterialCode)).
				WithDetails(map[string]any{"field": string(FieldMaterialCode), "row": i + 1})
		}
		key := row.dedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, row)
	}

	return &ParseResult{
		Rows:       out,
		TotalRows:  len(raw),
		Duplicates: len(raw) - len(out),
	}, nil
}

func anyHasField(rows []normalizedRow, field Field) bool {
	for _, r := range rows {
		if _, ok := r.lookup(field); ok {
			return true
		}
	}
	return false
}
