package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dgallion1/planmark/internal/outline"
	"github.com/dgallion1/planmark/internal/plan"
)

// CSVParser reads a room schedule. The header row names the hierarchy
// columns (room, location, cabinet run, cabinet) in any order; every other
// column is attached as an attribute of the deepest node on the row.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*outline.Outline, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	o := &outline.Outline{Title: titleFrom(filename, ".csv")}
	if len(records) == 0 {
		return o, nil
	}

	headers := records[0]
	levels := make([]int, len(headers)) // column -> depth, 0 for attributes
	found := false
	for i, h := range headers {
		if t, err := plan.ParseAnnotationType(columnKey(h)); err == nil {
			if rank, ok := t.Rank(); ok {
				levels[i] = rank + 1
				found = true
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("parse csv: no room, location, cabinet_run or cabinet column in header")
	}

	for n, row := range records[1:] {
		line := n + 2 // 1-indexed, skip header
		path := make([]string, outline.MaxDepth)
		attrs := map[string]any{}
		for i, cell := range row {
			if i >= len(headers) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if d := levels[i]; d > 0 {
				path[d-1] = cell
				continue
			}
			attrs[strings.TrimSpace(headers[i])] = cellValue(cell)
		}

		var parent *outline.Node
		for _, label := range path {
			if label == "" {
				break
			}
			parent = o.Ensure(parent, label, line)
		}
		if parent == nil {
			continue
		}
		if len(attrs) > 0 {
			if parent.Attrs == nil {
				parent.Attrs = map[string]any{}
			}
			for k, v := range attrs {
				parent.Attrs[k] = v
			}
		}
	}
	return o, nil
}

// columnKey maps headers like "Cabinet Run" to annotation type names.
func columnKey(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.Join(strings.Fields(h), " ")), " ", "_")
}

func cellValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
