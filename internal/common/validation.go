package common

import (
	"fmt"
	"slices"
	"strings"

	"cvmatcher/internal/errors"
	"cvmatcher/internal/formatters"
)

// ValidateOutputFormat accepts a format that the formatter registry can
// render and, when configured is non-empty, that the config allows.
func ValidateOutputFormat(format string, configured []string) error {
	allowed := GetSupportedFormats(configured)
	if slices.Contains(allowed, format) {
		return nil
	}
	return errors.NewValidationError(errors.ErrCodeInvalidFormat,
		fmt.Sprintf("unsupported output format %q (supported: %s)", format, strings.Join(allowed, ", ")), nil)
}

// GetSupportedFormats lists the formats usable on the command line.
func GetSupportedFormats(configured []string) []string {
	registered := formatters.GlobalRegistry.GetSupportedFormats()
	if len(configured) == 0 {
		return registered
	}
	var formats []string
	for _, f := range configured {
		if slices.Contains(registered, f) {
			formats = append(formats, f)
		}
	}
	return formats
}
