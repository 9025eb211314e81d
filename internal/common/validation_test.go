package common

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"cvmatcher/internal/errors"
	"cvmatcher/internal/types"
)

func TestValidateOutputFormat(t *testing.T) {
	supported := []string{"json", "text", "markdown"}
	tests := []struct {
		name          string
		format        string
		supported     []string
		expectedError string
	}{
		{name: "json", format: "json", supported: supported},
		{name: "markdown", format: "markdown", supported: supported},
		{name: "no restrictions", format: "text", supported: nil},
		{
			name:          "xml",
			format:        "xml",
			supported:     supported,
			expectedError: `INVALID_FORMAT: unsupported output format "xml" (supported: json, text, markdown)`,
		},
		{
			name:          "case sensitive",
			format:        "JSON",
			supported:     supported,
			expectedError: `INVALID_FORMAT: unsupported output format "JSON" (supported: json, text, markdown)`,
		},
		{
			name:          "configured but not renderable",
			format:        "yaml",
			supported:     []string{"json", "yaml"},
			expectedError: `INVALID_FORMAT: unsupported output format "yaml" (supported: json)`,
		},
		{
			name:          "unknown without restrictions",
			format:        "anything",
			supported:     nil,
			expectedError: `INVALID_FORMAT: unsupported output format "anything" (supported: json, markdown, text)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputFormat(tt.format, tt.supported)
			if tt.expectedError == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.expectedError {
				t.Errorf("error = %v, want %q", err, tt.expectedError)
			}
		})
	}
}

func TestReadDocuments(t *testing.T) {
	dir := t.TempDir()
	cv := filepath.Join(dir, "jane.txt")
	if err := os.WriteFile(cv, []byte("Jane Doe"), 0600); err != nil {
		t.Fatal(err)
	}

	fp := NewFileProcessor([]string{".txt"}, errors.Discard())
	docs, err := fp.ReadDocuments(cv)
	if err != nil {
		t.Fatalf("ReadDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].Filename != "jane.txt" || string(docs[0].Data) != "Jane Doe" {
		t.Errorf("docs = %+v", docs)
	}

	_, err = fp.ReadDocuments(cv, filepath.Join(dir, "missing.pdf"))
	if !errors.IsType(err, errors.ErrorTypeIO) {
		t.Errorf("missing file error = %v, want io error", err)
	}

	_, err = fp.ReadDocument(dir)
	if !errors.IsType(err, errors.ErrorTypeValidation) {
		t.Errorf("directory error = %v, want validation error", err)
	}
}

func TestHandleOutputWritesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out", "list.md")
	oh := NewOutputHandler(errors.Discard())

	data := &types.CandidateListResponse{Candidates: []types.CandidateSummary{}, Count: 0}
	if err := oh.HandleOutput(data, CommandConfig{OutputFile: out, OutputFormat: "markdown"}); err != nil {
		t.Fatalf("HandleOutput: %v", err)
	}
	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(content) == 0 {
		t.Error("empty output file")
	}

	appendCfg := CommandConfig{OutputFile: out, OutputFormat: "json", AppendOutput: true}
	if err := oh.HandleOutput(data, appendCfg); err != nil {
		t.Fatalf("HandleOutput append: %v", err)
	}
	appended, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(appended, content) || len(appended) <= len(content) {
		t.Error("append mode did not keep the earlier output")
	}

	err = oh.HandleOutput(data, CommandConfig{OutputFormat: "xml"})
	if !errors.IsType(err, errors.ErrorTypeValidation) {
		t.Errorf("unknown format error = %v, want validation error", err)
	}
}

func TestRunCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "result.json")
	var logged bool

	err := RunCommand(t.Context(), errors.Discard(), CommandConfig{OutputFile: out, OutputFormat: "json"},
		"go developer",
		func(_ context.Context, query string) (*types.SearchResponse, error) {
			return &types.SearchResponse{Query: query, Results: []types.SearchHit{}}, nil
		},
		func(string, CommandConfig) { logged = true },
	)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if !logged {
		t.Error("logDetails not called")
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output not written: %v", err)
	}
}
