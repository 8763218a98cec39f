package data

import (
	"encoding/json"
	"fmt"
	"os"

	"wind-hindcast/internal/model"
)

// SiteList is the JSON shape of a sites file.
type SiteList struct {
	Sites []model.Site `json:"sites"`
}

func LoadSitesJSON(path string) ([]model.Site, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites file: %w", err)
	}
	var list SiteList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to parse sites file: %w", err)
	}
	if err := model.ValidateSites(list.Sites); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list.Sites, nil
}
