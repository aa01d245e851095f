// Package metrics computes per-file counts over named groups of tracked files.
package metrics

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/codeshape/pkg/vcs"
)

// Kind selects how a Definition contributes to a row.
type Kind string

// Definition kinds.
const (
	// KindGroup emits a group's sum and file count as two columns.
	KindGroup Kind = "group"
	// KindFirst emits the count of the first readable file of a group.
	KindFirst Kind = "first"
	// KindContributors emits the distinct authors of the preceding month.
	KindContributors Kind = "contributors"
)

// Sentinel errors for definition validation.
var (
	ErrUnknownKind   = errors.New("unknown metric kind")
	ErrEmptyName     = errors.New("metric name must not be empty")
	ErrDuplicateName = errors.New("duplicate metric name")
	ErrReservedName  = errors.New("metric name is reserved")
	ErrNoInclude     = errors.New("file group has no include pattern")
)

// reservedNames are the leading columns of every row.
var reservedNames = []string{"date", "sha"}

// FileGroup selects tracked files and says what to count in each.
type FileGroup struct {
	Name    string
	Include []string
	Exclude []string

	// Pattern, when set, counts non-overlapping matches instead of lines.
	Pattern *regexp.Regexp

	// Languages keeps only files detected as one of these languages
	// (case-insensitive). Empty keeps every language.
	Languages []string

	// SkipVendored drops vendored and generated dependency paths.
	SkipVendored bool
}

// Pathspec returns the group's selection as a pathspec.
func (g FileGroup) Pathspec() vcs.Pathspec {
	return vcs.Pathspec{Include: g.Include, Exclude: g.Exclude}
}

func (g FileGroup) languageSet() map[string]bool {
	if len(g.Languages) == 0 {
		return nil
	}

	set := make(map[string]bool, len(g.Languages))
	for _, lang := range g.Languages {
		set[strings.ToLower(lang)] = true
	}

	return set
}

// Definition is one named column source of a row.
type Definition struct {
	Name  string
	Kind  Kind
	Group FileGroup
}

// Validate checks a list of definitions for use as one row layout.
func Validate(defs []Definition) error {
	seen := make(map[string]bool, len(defs))

	for i, def := range defs {
		if def.Name == "" {
			return fmt.Errorf("metric %d: %w", i, ErrEmptyName)
		}

		if slices.Contains(reservedNames, def.Name) {
			return fmt.Errorf("metric %q: %w", def.Name, ErrReservedName)
		}

		if seen[def.Name] {
			return fmt.Errorf("metric %q: %w", def.Name, ErrDuplicateName)
		}

		seen[def.Name] = true

		switch def.Kind {
		case KindGroup, KindFirst:
			if len(def.Group.Include) == 0 {
				return fmt.Errorf("metric %q: %w", def.Name, ErrNoInclude)
			}
		case KindContributors:
		default:
			return fmt.Errorf("metric %q: %w: %q", def.Name, ErrUnknownKind, def.Kind)
		}
	}

	// Group columns add a <name>_files column that must not collide either.
	for _, def := range defs {
		if def.Kind == KindGroup && seen[def.Name+FilesSuffix] {
			return fmt.Errorf("metric %q: %w", def.Name+FilesSuffix, ErrDuplicateName)
		}
	}

	return nil
}

// FilesSuffix names the file-count column of a group.
const FilesSuffix = "_files"

// Result is the outcome of one group extraction.
type Result struct {
	// PerFile maps each readable file to its count.
	PerFile map[string]int
	// Files is the number of selected files, readable or not.
	Files int
	// Failed lists selected files that could not be read.
	Failed []string
}

// Sum adds the per-file counts. Files never enters the sum.
func (r Result) Sum() int {
	total := 0
	for _, n := range r.PerFile {
		total += n
	}

	return total
}

// Paths returns the readable paths in sorted order.
func (r Result) Paths() []string {
	return slices.Sorted(maps.Keys(r.PerFile))
}
