package common

import (
	"fmt"
	"os"
	"path/filepath"

	"cvmatcher/internal/errors"
	"cvmatcher/internal/ingest"
	"cvmatcher/internal/utils"
)

// FileProcessor handles common file operations
type FileProcessor struct {
	allowed []string
	logger  *errors.Logger
}

// NewFileProcessor creates a file processor that warns about files outside
// the allowed extensions
func NewFileProcessor(allowed []string, logger *errors.Logger) *FileProcessor {
	return &FileProcessor{allowed: allowed, logger: logger}
}

// ReadDocument reads a file into an upload document named by its base name
func (fp *FileProcessor) ReadDocument(filename string) (ingest.Document, error) {
	if err := utils.ValidateInputFile(filename); err != nil {
		if filename != "" && !fileExists(filename) {
			return ingest.Document{}, errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("File not found: %s", filename), err)
		}
		return ingest.Document{}, errors.NewValidationError("INVALID_INPUT_FILE",
			fmt.Sprintf("Invalid file %s", filename), err)
	}

	if len(fp.allowed) > 0 && !utils.HasExtension(filename, fp.allowed) && fp.logger != nil {
		fp.logger.Warn("File type is not accepted and will be reported as failed",
			"filename", filename)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return ingest.Document{}, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}
	return ingest.Document{Filename: filepath.Base(filename), Data: data}, nil
}

// ReadDocuments reads every file, failing on the first unreadable one
func (fp *FileProcessor) ReadDocuments(filenames ...string) ([]ingest.Document, error) {
	documents := make([]ingest.Document, 0, len(filenames))
	for _, filename := range filenames {
		doc, err := fp.ReadDocument(filename)
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}
	return documents, nil
}

// WriteFile writes content to filename, creating parent directories. With
// appendMode set, content is added to the end of an existing file.
func (fp *FileProcessor) WriteFile(filename, content string, appendMode bool) error {
	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewIOError("DIRECTORY_CREATE_FAILED",
			fmt.Sprintf("Cannot create directory for %s", filename), err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(filename, flags, 0600)
	if err == nil {
		_, err = f.WriteString(content)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		return errors.NewIOError("FILE_WRITE_FAILED",
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}
	return nil
}

// ValidateOutputFile validates output file path
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}

	return nil
}

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}
