package ops

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// categoryColumn is the column FilterCSV matches on.
const categoryColumn = "category"

type columnKind int

const (
	kindInt columnKind = iota
	kindFloat
	kindBool
	kindString
)

// FilterCSV keeps the rows of data.csv whose category equals the configured
// value and writes them as a JSON array of records to filtered-data.json.
// Column types are inferred over the whole file: integer, float, boolean or
// string; empty cells become null.
func (h *Handlers) FilterCSV(ctx context.Context) (string, error) {
	data, err := h.readFile("data.csv")
	if err != nil {
		return "", err
	}

	out, err := filterCSV(data, h.filterCategory)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := h.writeFile("filtered-data.json", out); err != nil {
		return "", err
	}
	return "Filtered CSV and saved JSON.", nil
}

func filterCSV(data []byte, category string) ([]byte, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse data.csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("data.csv: missing header")
	}

	header, rows := records[0], records[1:]
	col := -1
	for i, name := range header {
		if name == categoryColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("data.csv: no %q column", categoryColumn)
	}

	kinds := make([]columnKind, len(header))
	for i := range header {
		kinds[i] = inferKind(rows, i)
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	first := true
	for _, row := range rows {
		if row[col] != category {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		buf.WriteByte('{')
		for i, name := range header {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(name)
			buf.Write(key)
			buf.WriteByte(':')
			buf.WriteString(jsonCell(row[i], kinds[i]))
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func inferKind(rows [][]string, col int) columnKind {
	allInt, allFloat, allBool := true, true, true
	hasEmpty, hasValue := false, false
	for _, row := range rows {
		cell := row[col]
		if cell == "" {
			hasEmpty = true
			continue
		}
		hasValue = true
		if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			allFloat = false
		}
		if !isBool(cell) {
			allBool = false
		}
	}

	switch {
	case !hasValue:
		return kindString
	case allInt && !hasEmpty:
		return kindInt
	case allFloat:
		// A missing value forces an integer column to float.
		return kindFloat
	case allBool:
		return kindBool
	}
	return kindString
}

func isBool(s string) bool {
	switch s {
	case "True", "False", "TRUE", "FALSE", "true", "false":
		return true
	}
	return false
}

func jsonCell(cell string, kind columnKind) string {
	if cell == "" {
		return "null"
	}
	switch kind {
	case kindInt:
		n, _ := strconv.ParseInt(cell, 10, 64)
		return strconv.FormatInt(n, 10)
	case kindFloat:
		f, _ := strconv.ParseFloat(cell, 64)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "null"
		}
		return formatFloat(f)
	case kindBool:
		if cell == "True" || cell == "TRUE" || cell == "true" {
			return "true"
		}
		return "false"
	default:
		s, _ := json.Marshal(cell)
		return string(s)
	}
}
