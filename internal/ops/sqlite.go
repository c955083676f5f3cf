package ops

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// goldSalesQuery totals Gold ticket revenue.
const goldSalesQuery = "SELECT SUM(units * price) FROM tickets WHERE type = 'Gold'"

// openSQLite opens an existing database read-only.
func (h *Handlers) openSQLite(name string) (*sql.DB, error) {
	path := h.path(name)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: no such file", name)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return db, nil
}

// GoldTicketSales writes the total Gold ticket sales in ticket-sales.db to
// ticket-sales-gold.txt. No Gold rows totals 0.
func (h *Handlers) GoldTicketSales(ctx context.Context) (string, error) {
	db, err := h.openSQLite("ticket-sales.db")
	if err != nil {
		return "", err
	}
	defer db.Close()

	var total any
	if err := db.QueryRowContext(ctx, goldSalesQuery).Scan(&total); err != nil {
		return "", fmt.Errorf("query ticket-sales.db: %w", err)
	}
	if total == nil {
		total = int64(0)
	}

	if err := h.writeFile("ticket-sales-gold.txt", []byte(formatValue(total))); err != nil {
		return "", err
	}
	return "Calculated total sales for Gold tickets.", nil
}

// SQLQuery runs the configured query against database.db and writes the
// result set, with a header row, to query-result.csv.
func (h *Handlers) SQLQuery(ctx context.Context) (string, error) {
	if h.sqlQuery == "" {
		return "", fmt.Errorf("no SQL query configured")
	}
	db, err := h.openSQLite("database.db")
	if err != nil {
		return "", err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, h.sqlQuery)
	if err != nil {
		return "", fmt.Errorf("query database.db: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("query database.db: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return "", err
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	record := make([]string, len(cols))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("query database.db: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	if err := h.writeFile("query-result.csv", buf.Bytes()); err != nil {
		return "", err
	}
	return "Executed SQL query.", nil
}

// formatValue renders a scanned column value. Floats keep a fractional
// part ("12.0"); NULL is the empty string.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case bool:
		return strconv.FormatBool(x)
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e16 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
