package metrics

import (
	"bytes"
	"regexp"
)

// CountLines counts newline-terminated lines plus a trailing unterminated one.
func CountLines(data []byte) int {
	lines := bytes.Count(data, []byte{'\n'})
	if len(data) > 0 && data[len(data)-1] != '\n' {
		lines++
	}

	return lines
}

// CountMatches counts the non-overlapping matches of re in data.
func CountMatches(re *regexp.Regexp, data []byte) int {
	return len(re.FindAllIndex(data, -1))
}

// Count applies the group's counting rule to one file's content.
func (g FileGroup) Count(data []byte) int {
	if g.Pattern != nil {
		return CountMatches(g.Pattern, data)
	}

	return CountLines(data)
}
