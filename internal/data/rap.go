package data

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"wind-hindcast/internal/metrics"
	"wind-hindcast/internal/model"
)

const (
	DefaultRAPBaseURL = "https://www.ncei.noaa.gov/thredds/ncss/rap130anl/"

	DefaultUVar = "u-component_of_wind_height_above_ground"
	DefaultVVar = "v-component_of_wind_height_above_ground"

	// DefaultHeightIndex selects 80 m above ground in the RAP height dimension.
	DefaultHeightIndex = 1
)

// Source error codes. All of them are per-hour and non-fatal for a run.
const (
	CodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	CodeNotFound          = "NOT_FOUND"
	CodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	CodeMalformed         = "MALFORMED_SNAPSHOT"
)

// HTTPClient allows swapping http.Client in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SnapshotDecoder turns a response payload into a grid snapshot.
type SnapshotDecoder interface {
	Decode(payload []byte) (*model.GridSnapshot, error)
}

// BBox is the geographic subset requested from the server, in degrees.
type BBox struct {
	North float64 `json:"north" yaml:"north"`
	West  float64 `json:"west" yaml:"west"`
	East  float64 `json:"east" yaml:"east"`
	South float64 `json:"south" yaml:"south"`
}

// DefaultBBox covers the western US interconnection.
var DefaultBBox = BBox{North: 49, West: -122, East: -102, South: 32}

func (b BBox) Validate() error {
	if b.North <= b.South {
		return fmt.Errorf("bbox north (%g) must be greater than south (%g)", b.North, b.South)
	}
	if b.East <= b.West {
		return fmt.Errorf("bbox east (%g) must be greater than west (%g)", b.East, b.West)
	}
	return nil
}

// RAPOptions configures a RAPClient. Zero values fall back to the defaults,
// except HeightIndex, which is used as given (see DefaultRAPOptions).
type RAPOptions struct {
	BaseURL     string
	BBox        BBox
	UVar        string
	VVar        string
	HeightIndex int
	Timeout     time.Duration
}

func DefaultRAPOptions() RAPOptions {
	return RAPOptions{
		BaseURL:     DefaultRAPBaseURL,
		BBox:        DefaultBBox,
		UVar:        DefaultUVar,
		VVar:        DefaultVVar,
		HeightIndex: DefaultHeightIndex,
		Timeout:     60 * time.Second,
	}
}

// RAPClient fetches hourly RAP analyses from a THREDDS NetCDF Subset Service.
type RAPClient struct {
	BaseURL string
	BBox    BBox
	UVar    string
	VVar    string
	Client  HTTPClient
	Decoder SnapshotDecoder
}

// SourceError is a failed snapshot request.
type SourceError struct {
	StatusCode int
	Code       string
	Message    string
	Key        string
	RetryAfter string
	Err        error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Key, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Key, e.Message)
}

func (e *SourceError) Unwrap() error { return e.Err }

// NewRAPClient creates a client decoding netCDF responses.
func NewRAPClient(opts RAPOptions) *RAPClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultRAPBaseURL
	}
	if opts.BBox == (BBox{}) {
		opts.BBox = DefaultBBox
	}
	if opts.UVar == "" {
		opts.UVar = DefaultUVar
	}
	if opts.VVar == "" {
		opts.VVar = DefaultVVar
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &RAPClient{
		BaseURL: opts.BaseURL,
		BBox:    opts.BBox,
		UVar:    opts.UVar,
		VVar:    opts.VVar,
		Client: &http.Client{
			Timeout: opts.Timeout,
		},
		Decoder: &NetCDFDecoder{
			UVar:        opts.UVar,
			VVar:        opts.VVar,
			HeightIndex: opts.HeightIndex,
		},
	}
}

// URL builds the NCSS query for one analysis hour.
func (c *RAPClient) URL(key model.RequestKey) (string, error) {
	day := key.Date.Format("20060102")
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	u = u.JoinPath(day[:6], day, key.String()+".grb2")

	q := url.Values{}
	q.Add("var", c.UVar)
	q.Add("var", c.VVar)
	q.Set("north", formatDeg(c.BBox.North))
	q.Set("west", formatDeg(c.BBox.West))
	q.Set("east", formatDeg(c.BBox.East))
	q.Set("south", formatDeg(c.BBox.South))
	q.Set("disableProjSubset", "on")
	q.Set("horizStride", "1")
	q.Set("addLatLon", "true")
	q.Set("accept", "netCDF")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchSnapshot downloads and decodes the analysis for key. Every failure is
// returned as a *SourceError.
func (c *RAPClient) FetchSnapshot(ctx context.Context, key model.RequestKey) (*model.GridSnapshot, error) {
	start := time.Now()
	snap, err := c.fetch(ctx, key)
	result := "ok"
	if err != nil {
		result = CodeSourceUnavailable
		if se, ok := err.(*SourceError); ok {
			result = se.Code
		}
	}
	metrics.ObserveSnapshotFetch(result, time.Since(start))
	return snap, err
}

func (c *RAPClient) fetch(ctx context.Context, key model.RequestKey) (*model.GridSnapshot, error) {
	if c.Decoder == nil {
		return nil, &SourceError{Code: CodeMalformed, Message: "no decoder configured", Key: key.String()}
	}
	body, err := c.FetchRaw(ctx, key)
	if err != nil {
		return nil, err
	}

	snap, err := c.Decoder.Decode(body)
	if err == nil {
		err = snap.Validate()
	}
	if err != nil {
		log.Printf("[RAP] Error decoding response: %v (key=%s)", err, key)
		return nil, &SourceError{StatusCode: http.StatusOK, Code: CodeMalformed, Message: "failed to decode snapshot", Key: key.String(), Err: err}
	}
	snap.Time = key.Time()

	log.Printf("[RAP] Success: %d grid points (key=%s)", snap.Len(), key)
	return snap, nil
}

// FetchRaw downloads the netCDF payload for key without decoding it.
func (c *RAPClient) FetchRaw(ctx context.Context, key model.RequestKey) ([]byte, error) {
	rawURL, err := c.URL(key)
	if err != nil {
		return nil, &SourceError{Code: CodeSourceUnavailable, Message: "failed to build request URL", Key: key.String(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &SourceError{Code: CodeSourceUnavailable, Message: "failed to create request", Key: key.String(), Err: err}
	}
	req.Header.Set("Accept", "application/x-netcdf")

	log.Printf("[RAP] Request: GET %s (key=%s)", req.URL.Path, key)

	startTime := time.Now()
	resp, err := c.Client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Printf("[RAP] Request failed: %v (duration: %v, key=%s)", err, duration, key)
		return nil, &SourceError{Code: CodeSourceUnavailable, Message: "failed to execute request", Key: key.String(), Err: err}
	}
	defer resp.Body.Close()

	log.Printf("[RAP] Response: %d (duration: %v, key=%s)", resp.StatusCode, duration, key)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, &SourceError{
			StatusCode: resp.StatusCode,
			Code:       CodeNotFound,
			Message:    "analysis file not found",
			Key:        key.String(),
		}
	case http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("Retry-After")
		log.Printf("[RAP] Error: 429 Rate Limit Exceeded - Retry after: %s (key=%s)", retryAfter, key)
		return nil, &SourceError{
			StatusCode: resp.StatusCode,
			Code:       CodeRateLimited,
			Message:    fmt.Sprintf("rate limit exceeded, retry after: %s", retryAfter),
			Key:        key.String(),
			RetryAfter: retryAfter,
		}
	default:
		return nil, &SourceError{
			StatusCode: resp.StatusCode,
			Code:       CodeSourceUnavailable,
			Message:    fmt.Sprintf("server returned status %d", resp.StatusCode),
			Key:        key.String(),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SourceError{StatusCode: resp.StatusCode, Code: CodeSourceUnavailable, Message: "failed to read response body", Key: key.String(), Err: err}
	}
	return body, nil
}

func formatDeg(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
