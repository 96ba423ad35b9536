// Package local writes digests to the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/sink"
)

// DefaultFileName is the digest written on every run.
const DefaultFileName = "digest.json"

// Config captures the parameters for the filesystem sink.
type Config struct {
	// Dir is the directory digests are written into.
	Dir string `mapstructure:"dir"`
	// FileName is overwritten by every run.
	FileName string `mapstructure:"file_name"`
	// KeepRuns also writes runs/<run_id>.json.
	KeepRuns bool `mapstructure:"keep_runs"`
}

// Sink writes digest JSON files.
type Sink struct {
	dir      string
	fileName string
	keepRuns bool
	logger   *zap.Logger
}

// New creates the directory if needed and checks that it is writable.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("output directory is required")
	}
	if cfg.FileName == "" {
		cfg.FileName = DefaultFileName
	}
	if filepath.Base(cfg.FileName) != cfg.FileName {
		return nil, fmt.Errorf("file name %q must not contain a path", cfg.FileName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(cfg.Dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create output directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat output directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("output path %q is not a directory", cfg.Dir)
	}

	probe, err := os.CreateTemp(cfg.Dir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("output directory is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}

	return &Sink{
		dir:      cfg.Dir,
		fileName: cfg.FileName,
		keepRuns: cfg.KeepRuns,
		logger:   logger,
	}, nil
}

// Write implements crawler.Sink.
func (s *Sink) Write(_ context.Context, digest crawler.Digest) error {
	data, err := sink.Encode(digest)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, s.fileName)
	if err := writeFile(path, data); err != nil {
		return err
	}
	s.logger.Info("digest written", zap.String("path", path), zap.Int("articles", len(digest.Articles)))

	if !s.keepRuns {
		return nil
	}
	runPath, err := s.runPath(digest.RunID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(runPath), 0o750); err != nil {
		return fmt.Errorf("create runs directory: %w", err)
	}
	return writeFile(runPath, data)
}

// Close implements crawler.Sink.
func (s *Sink) Close(context.Context) error {
	return nil
}

// Path returns the file every run overwrites.
func (s *Sink) Path() string {
	return filepath.Join(s.dir, s.fileName)
}

func (s *Sink) runPath(runID string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", errors.New("run id is required")
	}
	runs := filepath.Clean(filepath.Join(s.dir, "runs"))
	full := filepath.Clean(filepath.Join(runs, runID+".json"))
	if !strings.HasPrefix(full, runs+string(filepath.Separator)) {
		return "", errors.New("path traversal detected")
	}
	return full, nil
}

// writeFile replaces path atomically so readers never see a partial digest.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".digest-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename digest: %w", err)
	}
	return nil
}
