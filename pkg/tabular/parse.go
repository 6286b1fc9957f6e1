// Package tabular turns raw CSV or JSON text into column-keyed rows for
// the import pipeline. The CSV dialect is intentionally minimal: lines
// split on newlines, cells split on commas, no quoting. Spreadsheet
// exports with quoted commas need the JSON path.
package tabular

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseCSV parses CSV text into rows keyed by header name. The first
// non-blank line is the header; blank lines are skipped; cells and
// headers are whitespace-trimmed. Rows with more cells than headers keep
// only the first len(headers) cells; rows with fewer leave the remaining
// headers absent. Cell values are always strings.
func ParseCSV(text string) ([]map[string]any, []string, error) {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil, nil, fmt.Errorf("empty csv input")
	}

	headers := splitCells(lines[0])
	if len(headers) == 0 {
		return nil, nil, fmt.Errorf("csv header row has no columns")
	}

	rows := make([]map[string]any, 0, len(lines)-1)
	for _, line := range lines[1:] {
		cells := splitCells(line)
		row := make(map[string]any, len(headers))
		for i, header := range headers {
			if i < len(cells) {
				row[header] = cells[i]
			}
		}
		rows = append(rows, row)
	}

	return rows, headers, nil
}

// ParseJSONRows parses JSON text into rows. A top-level array must
// contain only objects; a top-level object becomes a single row. Any
// other shape is a parse error.
func ParseJSONRows(text string) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty json input")
	}

	if strings.HasPrefix(trimmed, "[") {
		var raw []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, fmt.Errorf("invalid json array: %w", err)
		}
		rows := make([]map[string]any, 0, len(raw))
		for i, item := range raw {
			var row map[string]any
			if err := json.Unmarshal(item, &row); err != nil {
				return nil, fmt.Errorf("json row %d is not an object: %w", i, err)
			}
			rows = append(rows, row)
		}
		return rows, nil
	}

	var row map[string]any
	if err := json.Unmarshal([]byte(trimmed), &row); err != nil {
		return nil, fmt.Errorf("invalid json input: %w", err)
	}
	return []map[string]any{row}, nil
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func splitCells(line string) []string {
	cells := strings.Split(line, ",")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}
