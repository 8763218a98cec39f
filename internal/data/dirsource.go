package data

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"wind-hindcast/internal/metrics"
	"wind-hindcast/internal/model"
)

// FileDecoder reads one snapshot from a file on disk.
type FileDecoder interface {
	DecodeFile(path string) (*model.GridSnapshot, error)
}

// DirSource serves snapshots from a directory of previously downloaded
// analyses named <key>.nc, e.g. rap_130_20160101_0700_000.nc.
type DirSource struct {
	Dir     string
	Ext     string // default ".nc"
	Decoder FileDecoder
}

func NewDirSource(dir string, heightIndex int) *DirSource {
	return &DirSource{
		Dir:     dir,
		Ext:     ".nc",
		Decoder: &NetCDFDecoder{HeightIndex: heightIndex},
	}
}

// Path is the file expected for key.
func (s *DirSource) Path(key model.RequestKey) string {
	ext := s.Ext
	if ext == "" {
		ext = ".nc"
	}
	return filepath.Join(s.Dir, key.String()+ext)
}

// FetchSnapshot reads the file for key. Failures are returned as *SourceError
// with the same codes the HTTP source uses.
func (s *DirSource) FetchSnapshot(ctx context.Context, key model.RequestKey) (*model.GridSnapshot, error) {
	start := time.Now()
	snap, err := s.read(ctx, key)
	result := "ok"
	var se *SourceError
	if errors.As(err, &se) {
		result = se.Code
	} else if err != nil {
		result = CodeSourceUnavailable
	}
	metrics.ObserveSnapshotFetch(result, time.Since(start))
	return snap, err
}

func (s *DirSource) read(ctx context.Context, key model.RequestKey) (*model.GridSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(key)
	if _, err := os.Stat(path); err != nil {
		code, msg := CodeSourceUnavailable, "failed to stat analysis file"
		if errors.Is(err, os.ErrNotExist) {
			code, msg = CodeNotFound, "analysis file not found"
		}
		return nil, &SourceError{Code: code, Message: msg, Key: key.String(), Err: err}
	}
	if s.Decoder == nil {
		return nil, &SourceError{Code: CodeMalformed, Message: "no decoder configured", Key: key.String()}
	}

	snap, err := s.Decoder.DecodeFile(path)
	if err == nil {
		err = snap.Validate()
	}
	if err != nil {
		log.Printf("[Dir] Error decoding %s: %v", path, err)
		return nil, &SourceError{Code: CodeMalformed, Message: fmt.Sprintf("failed to decode %s", filepath.Base(path)), Key: key.String(), Err: err}
	}
	snap.Time = key.Time()
	return snap, nil
}
