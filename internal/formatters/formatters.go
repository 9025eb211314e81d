package formatters

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"cvmatcher/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "BatchResult", &BatchTextFormatter{})
	registry.RegisterFormatter("markdown", "BatchResult", &BatchMarkdownFormatter{})
	registry.RegisterFormatter("text", "SearchResponse", &SearchTextFormatter{})
	registry.RegisterFormatter("markdown", "SearchResponse", &SearchMarkdownFormatter{})
	registry.RegisterFormatter("text", "CandidateListResponse", &CandidatesTextFormatter{})
	registry.RegisterFormatter("markdown", "CandidateListResponse", &CandidatesMarkdownFormatter{})
	registry.RegisterFormatter("text", "DeleteResponse", &DeleteTextFormatter{})
	registry.RegisterFormatter("markdown", "DeleteResponse", &DeleteTextFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats, sorted
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	slices.Sort(formats)
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case *types.BatchResult:
		return "BatchResult"
	case *types.SearchResponse:
		return "SearchResponse"
	case *types.CandidateListResponse:
		return "CandidateListResponse"
	case *types.DeleteResponse:
		return "DeleteResponse"
	default:
		return "any"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// BatchTextFormatter handles text formatting for upload results
type BatchTextFormatter struct{}

func (f *BatchTextFormatter) Format(data any) (string, error) {
	result, ok := data.(*types.BatchResult)
	if !ok {
		return "", fmt.Errorf("expected *BatchResult, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== UPLOAD RESULTS ===\n")
	fmt.Fprintf(&output, "Files: %d  Successful: %d  Failed: %d\n\n",
		result.Summary.TotalFiles, result.Summary.Successful, result.Summary.Failed)

	for _, c := range result.Candidates {
		if c.Status == types.StatusSuccess && c.CandidateInfo != nil {
			info := c.CandidateInfo
			fmt.Fprintf(&output, "[OK]    %s\n", c.Filename)
			fmt.Fprintf(&output, "        %s, %s (%d lines, %d words)\n", info.FullName, info.JobTitle, info.LinesCount, info.WordsCount)
			fmt.Fprintf(&output, "        id: %s\n", info.ID)
		} else {
			fmt.Fprintf(&output, "[ERROR] %s: %s\n", c.Filename, c.Message)
		}
	}

	output.WriteString("\n=== JOB DESCRIPTION ===\n")
	output.WriteString(result.JobDescription)
	output.WriteString("\n")
	return output.String(), nil
}

func (f *BatchTextFormatter) SupportedType() string {
	return "BatchResult"
}

// BatchMarkdownFormatter handles markdown formatting for upload results
type BatchMarkdownFormatter struct{}

func (f *BatchMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(*types.BatchResult)
	if !ok {
		return "", fmt.Errorf("expected *BatchResult, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Upload Results\n\n")
	fmt.Fprintf(&output, "**Files:** %d | **Successful:** %d | **Failed:** %d\n\n",
		result.Summary.TotalFiles, result.Summary.Successful, result.Summary.Failed)

	output.WriteString("| File | Status | Name | Title | Lines | Words | ID / Message |\n")
	output.WriteString("|---|---|---|---|---|---|---|\n")
	for _, c := range result.Candidates {
		if c.Status == types.StatusSuccess && c.CandidateInfo != nil {
			info := c.CandidateInfo
			fmt.Fprintf(&output, "| %s | success | %s | %s | %d | %d | `%s` |\n",
				cell(c.Filename), cell(info.FullName), cell(info.JobTitle), info.LinesCount, info.WordsCount, info.ID)
		} else {
			fmt.Fprintf(&output, "| %s | error | | | | | %s |\n", cell(c.Filename), cell(c.Message))
		}
	}

	output.WriteString("\n## Job Description\n\n")
	output.WriteString(result.JobDescription)
	output.WriteString("\n")
	return output.String(), nil
}

func (f *BatchMarkdownFormatter) SupportedType() string {
	return "BatchResult"
}

// SearchTextFormatter handles text formatting for search results
type SearchTextFormatter struct{}

func (f *SearchTextFormatter) Format(data any) (string, error) {
	resp, ok := data.(*types.SearchResponse)
	if !ok {
		return "", fmt.Errorf("expected *SearchResponse, got %T", data)
	}

	var output strings.Builder
	fmt.Fprintf(&output, "=== SEARCH: %q (%d results) ===\n", resp.Query, resp.Count)
	for i, hit := range resp.Results {
		fmt.Fprintf(&output, "\n%d. %s, %s  [score %.4f]\n", i+1, hit.FullName, hit.JobTitle, hit.Score)
		fmt.Fprintf(&output, "   file: %s  id: %s  uploaded: %s\n", hit.Filename, hit.ID, formatTimestamp(hit.Timestamp))
		fmt.Fprintf(&output, "   %s\n", strings.ReplaceAll(hit.TextPreview, "\n", " "))
	}
	return output.String(), nil
}

func (f *SearchTextFormatter) SupportedType() string {
	return "SearchResponse"
}

// SearchMarkdownFormatter handles markdown formatting for search results
type SearchMarkdownFormatter struct{}

func (f *SearchMarkdownFormatter) Format(data any) (string, error) {
	resp, ok := data.(*types.SearchResponse)
	if !ok {
		return "", fmt.Errorf("expected *SearchResponse, got %T", data)
	}

	var output strings.Builder
	fmt.Fprintf(&output, "# Search: %s\n\n", resp.Query)
	fmt.Fprintf(&output, "%d result(s)\n", resp.Count)
	for i, hit := range resp.Results {
		fmt.Fprintf(&output, "\n## %d. %s\n\n", i+1, hit.FullName)
		fmt.Fprintf(&output, "- **Title:** %s\n", hit.JobTitle)
		fmt.Fprintf(&output, "- **Score:** %.4f\n", hit.Score)
		fmt.Fprintf(&output, "- **File:** %s\n", hit.Filename)
		fmt.Fprintf(&output, "- **ID:** `%s`\n\n", hit.ID)
		fmt.Fprintf(&output, "> %s\n", strings.ReplaceAll(hit.TextPreview, "\n", "\n> "))
	}
	return output.String(), nil
}

func (f *SearchMarkdownFormatter) SupportedType() string {
	return "SearchResponse"
}

// CandidatesTextFormatter handles text formatting for candidate listings
type CandidatesTextFormatter struct{}

func (f *CandidatesTextFormatter) Format(data any) (string, error) {
	resp, ok := data.(*types.CandidateListResponse)
	if !ok {
		return "", fmt.Errorf("expected *CandidateListResponse, got %T", data)
	}

	var output strings.Builder
	fmt.Fprintf(&output, "=== CANDIDATES (%d) ===\n", resp.Count)
	for _, c := range resp.Candidates {
		fmt.Fprintf(&output, "%s  %-24s %-28s %s  %s\n",
			c.ID, c.FullName, c.JobTitle, c.Filename, formatTimestamp(c.Timestamp))
	}
	return output.String(), nil
}

func (f *CandidatesTextFormatter) SupportedType() string {
	return "CandidateListResponse"
}

// CandidatesMarkdownFormatter handles markdown formatting for candidate listings
type CandidatesMarkdownFormatter struct{}

func (f *CandidatesMarkdownFormatter) Format(data any) (string, error) {
	resp, ok := data.(*types.CandidateListResponse)
	if !ok {
		return "", fmt.Errorf("expected *CandidateListResponse, got %T", data)
	}

	var output strings.Builder
	fmt.Fprintf(&output, "# Candidates (%d)\n\n", resp.Count)
	output.WriteString("| Name | Title | File | Lines | Words | Uploaded | ID |\n")
	output.WriteString("|---|---|---|---|---|---|---|\n")
	for _, c := range resp.Candidates {
		fmt.Fprintf(&output, "| %s | %s | %s | %d | %d | %s | `%s` |\n",
			cell(c.FullName), cell(c.JobTitle), cell(c.Filename), c.LinesCount, c.WordsCount, formatTimestamp(c.Timestamp), c.ID)
	}
	return output.String(), nil
}

func (f *CandidatesMarkdownFormatter) SupportedType() string {
	return "CandidateListResponse"
}

// DeleteTextFormatter renders delete results in text and markdown alike
type DeleteTextFormatter struct{}

func (f *DeleteTextFormatter) Format(data any) (string, error) {
	resp, ok := data.(*types.DeleteResponse)
	if !ok {
		return "", fmt.Errorf("expected *DeleteResponse, got %T", data)
	}
	switch {
	case resp.Message != "":
		return resp.Message, nil
	case resp.Success:
		return fmt.Sprintf("Deleted candidate %s", resp.ID), nil
	default:
		return fmt.Sprintf("Candidate %s was not deleted", resp.ID), nil
	}
}

func (f *DeleteTextFormatter) SupportedType() string {
	return "DeleteResponse"
}

// cell escapes a value for a markdown table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func formatTimestamp(ts float64) string {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format(time.RFC3339)
}

// GlobalRegistry is the default formatter registry
var GlobalRegistry = NewFormatterRegistry()
