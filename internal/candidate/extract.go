// Package candidate derives lightweight candidate metadata from résumé text.
package candidate

import (
	"strings"
	"unicode"
)

// Unknown is reported for any field the heuristics cannot fill.
const Unknown = "Unknown"

// titleScanLines bounds how far into the document a job-title keyword is searched.
const titleScanLines = 5

// TitleKeywords mark a line as a probable job title.
var TitleKeywords = []string{
	"developer",
	"engineer",
	"manager",
	"analyst",
	"designer",
	"architect",
	"consultant",
	"specialist",
	"coordinator",
	"director",
}

// Fields holds the metadata extracted from one document.
type Fields struct {
	FullName  string
	JobTitle  string
	LineCount int
	WordCount int
}

// Extract applies the name/title heuristics to raw document text.
//
// The first non-empty line is taken as the name and the second as the
// title, unless one of the first five lines contains a title keyword, in
// which case the first such line wins. Extract never fails; missing
// fields are reported as Unknown.
func Extract(rawText string) Fields {
	lines := nonEmptyLines(rawText)
	if len(lines) == 0 {
		return Fields{FullName: Unknown, JobTitle: Unknown}
	}

	fields := Fields{
		FullName:  lines[0],
		JobTitle:  Unknown,
		LineCount: len(lines),
		WordCount: len(strings.FieldsFunc(rawText, isSpace)),
	}
	if len(lines) > 1 {
		fields.JobTitle = lines[1]
	}

	for _, line := range lines[:min(titleScanLines, len(lines))] {
		if hasTitleKeyword(line) {
			fields.JobTitle = line
			break
		}
	}

	return fields
}

func hasTitleKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, keyword := range TitleKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func nonEmptyLines(text string) []string {
	raw := strings.FieldsFunc(text, isLineBreak)
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if trimmed := strings.TrimFunc(line, isSpace); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

// isLineBreak matches the universal newline set, so that text decoded from
// PDFs (form feeds, unicode separators) splits the same way as plain text.
func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x85, 0x2028, 0x2029:
		return true
	}
	return false
}

// isSpace extends unicode.IsSpace with the ASCII information separators
// (0x1c to 0x1f), which the line and word splitting also treat as blanks.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}
