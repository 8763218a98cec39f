package powercurve

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// SpeedColumn is the required header of the speed bin column.
const SpeedColumn = "Speed bin (m/s)"

var ErrUnknownTurbineClass = errors.New("unknown turbine class")

// Table maps integer wind speed bins (m/s) to normalized power (0..1), one
// column per turbine class. Read-only after load.
type Table struct {
	bins    []int
	row     map[int]int // bin -> row
	classes []string
	values  map[string][]float64
}

// NewTable builds a table from bins and per-class columns. Every column must
// have one value per bin.
func NewTable(bins []int, columns map[string][]float64, order ...string) (*Table, error) {
	if len(bins) == 0 {
		return nil, errors.New("power curve has no speed bins")
	}
	if len(columns) == 0 {
		return nil, errors.New("power curve has no turbine class columns")
	}

	t := &Table{
		row:    make(map[int]int, len(bins)),
		values: make(map[string][]float64, len(columns)),
	}

	perm := make([]int, len(bins))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool { return bins[perm[i]] < bins[perm[j]] })

	t.bins = make([]int, len(bins))
	for i, p := range perm {
		b := bins[p]
		if _, dup := t.row[b]; dup {
			return nil, fmt.Errorf("duplicate speed bin %d", b)
		}
		t.bins[i] = b
		t.row[b] = i
	}

	if len(order) == 0 {
		for name := range columns {
			order = append(order, name)
		}
		sort.Strings(order)
	}
	for _, name := range order {
		col, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("turbine class %q listed but has no column", name)
		}
		if len(col) != len(bins) {
			return nil, fmt.Errorf("turbine class %q has %d values, want %d", name, len(col), len(bins))
		}
		sorted := make([]float64, len(col))
		for i, p := range perm {
			if err := checkFraction(col[p]); err != nil {
				return nil, fmt.Errorf("turbine class %q at bin %d: %w", name, bins[p], err)
			}
			sorted[i] = col[p]
		}
		t.classes = append(t.classes, name)
		t.values[name] = sorted
	}
	return t, nil
}

// LoadCSV reads a power curve table from a CSV file.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open power curve file: %w", err)
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadCSV parses a power curve table. The header must contain SpeedColumn;
// every other non-empty header is a turbine class.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read power curve header: %w", err)
	}

	speedCol := -1
	classCols := map[int]string{}
	var order []string
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch {
		case h == SpeedColumn:
			speedCol = i
		case h == "":
			// unnamed index column
		default:
			classCols[i] = h
			order = append(order, h)
		}
	}
	if speedCol < 0 {
		return nil, fmt.Errorf("power curve is missing column %q", SpeedColumn)
	}
	if len(order) == 0 {
		return nil, errors.New("power curve has no turbine class columns")
	}

	var bins []int
	columns := make(map[string][]float64, len(order))
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b, err := parseBin(rec[speedCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bins = append(bins, b)
		for i, name := range classCols {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %q: %w", line, name, err)
			}
			if err := checkFraction(v); err != nil {
				return nil, fmt.Errorf("line %d: column %q: %w", line, name, err)
			}
			columns[name] = append(columns[name], v)
		}
	}
	return NewTable(bins, columns, order...)
}

// checkFraction rejects capacity fractions that are not finite or fall
// outside [0, 1].
func checkFraction(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("value %v is not finite", v)
	}
	if v < 0 || v > 1 {
		return fmt.Errorf("value %v outside [0, 1]", v)
	}
	return nil
}

func parseBin(s string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid speed bin %q", s)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("speed bin %q is not an integer", s)
	}
	return int(f), nil
}

// Classes returns the turbine classes in file order.
func (t *Table) Classes() []string {
	out := make([]string, len(t.classes))
	copy(out, t.classes)
	return out
}

func (t *Table) HasClass(class string) bool {
	_, ok := t.values[class]
	return ok
}

// Bins returns the speed bins in ascending order.
func (t *Table) Bins() []int {
	out := make([]int, len(t.bins))
	copy(out, t.bins)
	return out
}

// SpeedToPower converts a wind speed (m/s) to normalized power for class.
//
// Speeds outside the table, or with no bin at floor(speed) or ceil(speed),
// produce 0. An integer speed returns the stored value exactly. Otherwise the
// value is interpolated linearly between the two bins; when only one of them
// exists its value is used.
func (t *Table) SpeedToPower(speed float64, class string) (float64, error) {
	col, ok := t.values[class]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTurbineClass, class)
	}
	if math.IsNaN(speed) || math.IsInf(speed, 0) {
		return 0, nil
	}
	if speed < float64(t.bins[0]) || speed > float64(t.bins[len(t.bins)-1]) {
		return 0, nil
	}

	lo := int(math.Floor(speed))
	hi := int(math.Ceil(speed))
	iLo, hasLo := t.row[lo]
	iHi, hasHi := t.row[hi]

	switch {
	case !hasLo && !hasHi:
		return 0, nil
	case !hasHi:
		return col[iLo], nil
	case !hasLo || lo == hi:
		return col[iHi], nil
	}
	frac := speed - float64(lo)
	return col[iLo] + frac*(col[iHi]-col[iLo]), nil
}

// SitePower returns power in MW for a site of capacityMW.
func (t *Table) SitePower(speed float64, class string, capacityMW float64) (float64, error) {
	p, err := t.SpeedToPower(speed, class)
	if err != nil {
		return 0, err
	}
	return p * capacityMW, nil
}

// WindSpeed is the magnitude of the (u, v) wind vector.
func WindSpeed(u, v float64) float64 {
	return math.Hypot(u, v)
}
