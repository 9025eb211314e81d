package common

import (
	"fmt"
	"io"
	"os"

	"cvmatcher/internal/errors"
	"cvmatcher/internal/formatters"
)

// CommandConfig holds the output settings shared by CLI commands
type CommandConfig struct {
	OutputFile   string
	OutputFormat string
	// AppendOutput adds to OutputFile instead of replacing it, for commands
	// that emit more than one result.
	AppendOutput bool
}

// OutputHandler renders command results and writes them to a file or stdout
type OutputHandler struct {
	files    *FileProcessor
	registry *formatters.FormatterRegistry
	stdout   io.Writer
	logger   *errors.Logger
}

// NewOutputHandler creates an output handler that prints to os.Stdout
func NewOutputHandler(logger *errors.Logger) *OutputHandler {
	return &OutputHandler{
		files:    NewFileProcessor(nil, logger),
		registry: formatters.GlobalRegistry,
		stdout:   os.Stdout,
		logger:   logger,
	}
}

// HandleOutput renders data in config.OutputFormat and writes it out
func (oh *OutputHandler) HandleOutput(data any, config CommandConfig) error {
	output, err := oh.registry.Format(data, config.OutputFormat)
	if err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("Cannot render result as %s", config.OutputFormat), err)
	}

	if config.OutputFile == "" {
		_, err := fmt.Fprintln(oh.stdout, output)
		return err
	}

	if err := oh.files.WriteFile(config.OutputFile, output+"\n", config.AppendOutput); err != nil {
		return err
	}
	oh.logger.Info("Output written", "file", config.OutputFile, "format", config.OutputFormat)
	return nil
}
