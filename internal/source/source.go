// Package source loads documents from local storage and splits them into
// per-page text ready for indexing.
package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// DocumentSource yields documents to index.
type DocumentSource interface {
	Load(ctx context.Context) ([]models.DocumentInput, error)
}

// FileTracker remembers file stats so Load can skip files that have not
// changed since they were last indexed.
type FileTracker interface {
	FileUnchanged(ctx context.Context, path string, modTime, size int64) (bool, error)
	RememberFile(ctx context.Context, path string, modTime, size int64) error
}

// IndexConfirmer is implemented by sources that skip unchanged files. The
// caller confirms a clean ingest pass so the skip only ever applies to
// content that actually reached the index.
type IndexConfirmer interface {
	MarkIndexed(ctx context.Context) error
}

type fileStat struct {
	modTime int64
	size    int64
}

// FSSource loads documents from a directory tree, filtered by extension.
// With a FileTracker attached, Load skips files whose modification time and
// size match the tracker's record; MarkIndexed commits the stats of the
// files the last Load extracted.
type FSSource struct {
	dir        string
	extensions map[string]bool
	tracker    FileTracker
	logger     *zap.Logger

	mu     sync.Mutex
	loaded map[string]fileStat
}

// FSOption configures an FSSource.
type FSOption func(*FSSource)

// WithLogger sets a logger for file-level events.
func WithLogger(l *zap.Logger) FSOption {
	return func(s *FSSource) { s.logger = l }
}

// WithTracker enables skip-unchanged loading backed by t.
func WithTracker(t FileTracker) FSOption {
	return func(s *FSSource) { s.tracker = t }
}

// NewFSSource creates a source over dir. extensions are matched
// case-insensitively and must include the leading dot.
func NewFSSource(dir string, extensions []string, opts ...FSOption) *FSSource {
	s := &FSSource{
		dir:        dir,
		extensions: make(map[string]bool, len(extensions)),
		loaded:     make(map[string]fileStat),
	}
	for _, ext := range extensions {
		s.extensions[strings.ToLower(ext)] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load walks the directory and returns one DocumentInput per readable
// matching file. Files that fail to parse are logged and skipped so one
// bad document cannot block the rest of the corpus. With a tracker, files
// whose stats match the last confirmed pass are skipped without extraction;
// a tracker lookup failure degrades to loading the file.
func (s *FSSource) Load(ctx context.Context) ([]models.DocumentInput, error) {
	var docs []models.DocumentInput
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if !s.extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stat := fileStat{modTime: info.ModTime().UnixNano(), size: info.Size()}
		if s.tracker != nil {
			unchanged, err := s.tracker.FileUnchanged(ctx, path, stat.modTime, stat.size)
			if err != nil && s.logger != nil {
				s.logger.Warn("file state lookup failed, loading anyway",
					zap.String("path", path),
					zap.Error(err))
			}
			if err == nil && unchanged {
				return nil
			}
		}
		doc, err := s.LoadFile(path)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping unreadable document",
					zap.String("path", path),
					zap.Error(err))
			}
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.dir, err)
	}
	return docs, nil
}

// MarkIndexed records the stats of the files extracted since the last call,
// so subsequent Loads skip them until they change. Call it only after the
// loaded documents were fully written to the index: points in failed upsert
// batches are retried on the next pass, and that retry depends on their
// source file being re-extracted.
func (s *FSSource) MarkIndexed(ctx context.Context) error {
	if s.tracker == nil {
		return nil
	}
	s.mu.Lock()
	pending := s.loaded
	s.loaded = make(map[string]fileStat)
	s.mu.Unlock()
	for path, stat := range pending {
		if err := s.tracker.RememberFile(ctx, path, stat.modTime, stat.size); err != nil {
			return fmt.Errorf("remember file %s: %w", path, err)
		}
	}
	return nil
}

// LoadFile reads a single document and splits it into pages. PDFs yield
// one page per PDF page; plain-text formats yield a single page. On success
// the file's stat is queued for the next MarkIndexed; the stat is taken
// before reading so a concurrent edit re-triggers extraction.
func (s *FSSource) LoadFile(path string) (models.DocumentInput, error) {
	info, statErr := os.Stat(path)
	content, err := os.ReadFile(path)
	if err != nil {
		return models.DocumentInput{}, fmt.Errorf("read file: %w", err)
	}
	var pages []models.PageText
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		pages, err = extractPDFPages(content)
	default:
		pages, err = extractPlainPage(content)
	}
	if err != nil {
		return models.DocumentInput{}, err
	}
	if statErr == nil {
		s.mu.Lock()
		s.loaded[path] = fileStat{modTime: info.ModTime().UnixNano(), size: info.Size()}
		s.mu.Unlock()
	}
	return models.DocumentInput{
		SourceID: filepath.Base(path),
		Title:    titleOf(pages, filepath.Base(path)),
		Pages:    pages,
	}, nil
}

// titleOf returns the first line of the first non-empty page, falling
// back to the filename.
func titleOf(pages []models.PageText, fallback string) string {
	for _, p := range pages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		if line, _, found := strings.Cut(text, "\n"); found {
			return strings.TrimSpace(line)
		}
		return text
	}
	return fallback
}
