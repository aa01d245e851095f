package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/src-d/enry/v2"

	"github.com/Sumatoshi-tech/codeshape/pkg/worktree"
)

// ReadFunc reads one file of the working tree by absolute path.
type ReadFunc func(name string) ([]byte, error)

// Extractor reads groups of files from a leased working tree.
type Extractor struct {
	logger *slog.Logger
	read   ReadFunc
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithReadFunc replaces os.ReadFile.
func WithReadFunc(read ReadFunc) ExtractorOption {
	return func(e *Extractor) {
		e.read = read
	}
}

// NewExtractor creates an Extractor. A nil logger discards output.
func NewExtractor(logger *slog.Logger, opts ...ExtractorOption) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	e := &Extractor{logger: logger, read: os.ReadFile}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Extract lists the group's files in the leased snapshot and counts each one.
// Unreadable files are logged and recorded in Failed; they still count
// towards Files. The lease is checked before listing and after reading, so a
// result is never built from a tree that moved underneath it.
func (e *Extractor) Extract(ctx context.Context, lease *worktree.Lease, group FileGroup) (Result, error) {
	paths, err := lease.ListTrackedFiles(ctx, group.Pathspec())
	if err != nil {
		return Result{}, fmt.Errorf("list files for %s: %w", group.Name, err)
	}

	langs := group.languageSet()
	result := Result{PerFile: make(map[string]int, len(paths))}

	for _, rel := range paths {
		if group.SkipVendored && enry.IsVendor(rel) {
			continue
		}

		if langs != nil && !e.languageMatches(lease, rel, langs) {
			continue
		}

		result.Files++

		data, readErr := e.read(lease.Path(rel))
		if readErr != nil {
			e.logger.WarnContext(ctx, "unreadable file skipped",
				"group", group.Name, "path", rel, "error", readErr)

			result.Failed = append(result.Failed, rel)

			continue
		}

		result.PerFile[rel] = group.Count(data)
	}

	err = lease.Verify()
	if err != nil {
		return Result{}, fmt.Errorf("extract %s: %w", group.Name, err)
	}

	return result, nil
}

// First returns the count of the first readable file of the group, or 0 when
// no selected file is readable. Unreadable files are skipped rather than
// contributing the group's file count.
func (e *Extractor) First(ctx context.Context, lease *worktree.Lease, group FileGroup) (int, error) {
	result, err := e.Extract(ctx, lease, group)
	if err != nil {
		return 0, err
	}

	paths := result.Paths()
	if len(paths) == 0 {
		return 0, nil
	}

	return result.PerFile[paths[0]], nil
}

// languageMatches detects the language by file name and falls back to content
// when the name is ambiguous. A file whose language cannot be determined
// because it is unreadable is kept so the read failure is reported.
func (e *Extractor) languageMatches(lease *worktree.Lease, rel string, langs map[string]bool) bool {
	name := path.Base(rel)

	lang := enry.GetLanguage(name, nil)
	if lang == "" {
		data, err := e.read(lease.Path(rel))
		if err != nil {
			return true
		}

		lang = enry.GetLanguage(name, data)
	}

	if lang == "" {
		return false
	}

	return langs[strings.ToLower(lang)]
}
