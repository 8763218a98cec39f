package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"wind-hindcast/internal/model"
)

// Accepted header names per site column, case-insensitive.
var siteColumns = map[string][]string{
	"id":       {"id", "plant_id", "plantid"},
	"name":     {"name"},
	"lon":      {"lon", "longitude"},
	"lat":      {"lat", "latitude"},
	"capacity": {"capacity_mw", "genmwmax", "capacity"},
}

// LoadSites loads a site list from a .csv or .json file.
func LoadSites(path string) ([]model.Site, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadSitesJSON(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sites file: %w", err)
	}
	defer f.Close()

	sites, err := ReadSitesCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sites, nil
}

// ReadSitesCSV parses sites from CSV with a header row. id, lon, lat and
// capacity columns are required; name is optional.
func ReadSitesCSV(r io.Reader) ([]model.Site, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read sites header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for field, names := range siteColumns {
			for _, n := range names {
				if h == n {
					if _, dup := col[field]; !dup {
						col[field] = i
					}
				}
			}
		}
	}
	for _, required := range []string{"id", "lon", "lat", "capacity"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("sites file is missing a %q column (accepted: %s)",
				required, strings.Join(siteColumns[required], ", "))
		}
	}

	var sites []model.Site
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

		id, err := strconv.ParseInt(strings.TrimSpace(rec[col["id"]]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid id %q", line, rec[col["id"]])
		}
		s := model.Site{ID: int32(id)}
		if s.Lon, err = parseField(rec, col["lon"]); err != nil {
			return nil, fmt.Errorf("line %d: lon: %w", line, err)
		}
		if s.Lat, err = parseField(rec, col["lat"]); err != nil {
			return nil, fmt.Errorf("line %d: lat: %w", line, err)
		}
		if s.CapacityMW, err = parseField(rec, col["capacity"]); err != nil {
			return nil, fmt.Errorf("line %d: capacity: %w", line, err)
		}
		if i, ok := col["name"]; ok {
			s.Name = strings.TrimSpace(rec[i])
		}
		sites = append(sites, s)
	}
	if len(sites) == 0 {
		return nil, errors.New("sites file has no rows")
	}
	if err := model.ValidateSites(sites); err != nil {
		return nil, err
	}
	return sites, nil
}

func parseField(rec []string, i int) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
}
