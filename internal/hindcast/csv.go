package hindcast

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"wind-hindcast/internal/model"
)

var tableHeader = []string{"site_id", "u", "v", "power_mw", "ts", "ts_id"}

// WriteTableCSV writes rows to path. Missing values are empty cells.
func WriteTableCSV(path string, rows []model.OutputRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := WriteTable(f, rows); err != nil {
		return err
	}
	return f.Close()
}

func WriteTable(out io.Writer, rows []model.OutputRow) error {
	w := csv.NewWriter(out)
	if err := w.Write(tableHeader); err != nil {
		return err
	}
	for _, r := range rows {
		row := []string{
			strconv.FormatInt(int64(r.SiteID), 10),
			fmtFloat(r.U),
			fmtFloat(r.V),
			fmtFloat(r.PowerMW),
			fmtTime(r.Timestamp),
			strconv.FormatInt(int64(r.TsID), 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadTable parses a table written by WriteTable.
func ReadTable(in io.Reader) ([]model.OutputRow, error) {
	r := csv.NewReader(in)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read table header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(tableHeader, ",") {
		return nil, fmt.Errorf("unexpected table header %v", header)
	}

	var rows []model.OutputRow
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := model.OutputRow{Index: len(rows)}
		site, err := strconv.ParseInt(rec[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: site_id: %w", line, err)
		}
		row.SiteID = int32(site)
		if row.U, err = parseOptional(rec[1]); err != nil {
			return nil, fmt.Errorf("line %d: u: %w", line, err)
		}
		if row.V, err = parseOptional(rec[2]); err != nil {
			return nil, fmt.Errorf("line %d: v: %w", line, err)
		}
		if row.PowerMW, err = parseOptional(rec[3]); err != nil {
			return nil, fmt.Errorf("line %d: power_mw: %w", line, err)
		}
		if row.Timestamp, err = time.Parse(time.RFC3339, rec[4]); err != nil {
			return nil, fmt.Errorf("line %d: ts: %w", line, err)
		}
		ts, err := strconv.ParseInt(rec[5], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: ts_id: %w", line, err)
		}
		row.TsID = int32(ts)
		rows = append(rows, row)
	}
	return rows, nil
}

func LoadTableCSV(path string) ([]model.OutputRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTable(f)
}

// WriteMissing writes one request key per line.
func WriteMissing(path string, keys []model.RequestKey) error {
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k.String())
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func fmtFloat(x *float64) string {
	if x == nil {
		return ""
	}
	return strconv.FormatFloat(*x, 'f', 6, 64)
}

func parseOptional(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
