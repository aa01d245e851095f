package vcs

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrBadPathspec is returned when a pathspec pattern cannot be compiled.
var ErrBadPathspec = errors.New("bad pathspec")

// Exclusion magic prefixes, longest first.
var excludeMagic = []string{":(exclude)", ":!", ":^"}

// Pathspec selects tracked files the way git pathspecs do for plain patterns:
// "*" and "?" also match "/", and a pattern without wildcards matches the path
// itself or anything below it.
type Pathspec struct {
	Include []string
	Exclude []string
}

// ParsePathspec splits git-style pathspec arguments into includes and excludes.
// Quoted arguments ('*.css') are unquoted; ":!x", ":^x", ":!:x" and ":(exclude)x"
// are exclusions.
func ParsePathspec(args ...string) Pathspec {
	var spec Pathspec

	for _, arg := range args {
		arg = strings.Trim(strings.TrimSpace(arg), `'"`)
		if arg == "" {
			continue
		}

		pattern, excluded := stripExcludeMagic(arg)
		if excluded {
			spec.Exclude = append(spec.Exclude, pattern)
		} else {
			spec.Include = append(spec.Include, pattern)
		}
	}

	return spec
}

func stripExcludeMagic(arg string) (string, bool) {
	for _, magic := range excludeMagic {
		rest, ok := strings.CutPrefix(arg, magic)
		if !ok {
			continue
		}

		// Short magic may be terminated by a colon (":!:vendor/*").
		if magic != ":(exclude)" {
			rest = strings.TrimPrefix(rest, ":")
		}

		return rest, true
	}

	return arg, false
}

// Matcher is a compiled Pathspec.
type Matcher struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// Compile compiles the pathspec. An empty include list selects every path.
func (p Pathspec) Compile() (*Matcher, error) {
	include, err := compilePatterns(p.Include)
	if err != nil {
		return nil, err
	}

	exclude, err := compilePatterns(p.Exclude)
	if err != nil {
		return nil, err
	}

	return &Matcher{include: include, exclude: exclude}, nil
}

// Match reports whether path is selected.
func (m *Matcher) Match(path string) bool {
	for _, re := range m.exclude {
		if re.MatchString(path) {
			return false
		}
	}

	if len(m.include) == 0 {
		return true
	}

	for _, re := range m.include {
		if re.MatchString(path) {
			return true
		}
	}

	return false
}

// Filter returns the selected paths, keeping their order.
func (m *Matcher) Filter(paths []string) []string {
	out := make([]string, 0, len(paths))

	for _, path := range paths {
		if m.Match(path) {
			out = append(out, path)
		}
	}

	return out
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))

	for _, pattern := range patterns {
		re, err := regexp.Compile(globToRegexp(pattern))
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrBadPathspec, pattern, err)
		}

		out = append(out, re)
	}

	return out, nil
}

func globToRegexp(pattern string) string {
	pattern = strings.TrimPrefix(pattern, "./")

	if !strings.ContainsAny(pattern, "*?[") {
		literal := regexp.QuoteMeta(strings.TrimSuffix(pattern, "/"))

		return "^" + literal + "(/.*)?$"
	}

	var sb strings.Builder

	sb.WriteByte('^')

	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]

		switch ch {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteByte('.')
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				sb.WriteString(`\[`)

				continue
			}

			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}

			sb.WriteByte('[')
			sb.WriteString(strings.ReplaceAll(class, `\`, `\\`))
			sb.WriteByte(']')

			i += end + 1
		case '\\':
			if i+1 < len(pattern) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(pattern[i])))
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}

	sb.WriteByte('$')

	return sb.String()
}
