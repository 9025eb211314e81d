// Package textsource turns uploaded documents into plain text.
package textsource

import (
	"fmt"
	"slices"
	"strings"

	"cvmatcher/internal/errors"
	"cvmatcher/internal/utils"
)

// Decoder extracts the plain text of one document on disk.
type Decoder interface {
	Decode(path string) (string, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(path string) (string, error)

func (f DecoderFunc) Decode(path string) (string, error) { return f(path) }

// Registry dispatches documents to decoders by file extension.
type Registry struct {
	decoders map[string]Decoder // extension without dot -> decoder
	order    []string
}

// NewRegistry returns a registry with the pdf, docx and txt decoders.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]Decoder)}
	r.Register("pdf", DecoderFunc(DecodePDF))
	r.Register("docx", DecoderFunc(DecodeDOCX))
	r.Register("txt", DecoderFunc(DecodeText))
	return r
}

// Register adds or replaces the decoder for ext.
func (r *Registry) Register(ext string, d Decoder) {
	ext = normalize(ext)
	if _, exists := r.decoders[ext]; !exists {
		r.order = append(r.order, ext)
	}
	r.decoders[ext] = d
}

// Restrict drops every decoder whose extension is not in allowed.
func (r *Registry) Restrict(allowed []string) {
	keep := make(map[string]bool, len(allowed))
	for _, ext := range allowed {
		keep[normalize(ext)] = true
	}
	order := r.order[:0]
	for _, ext := range r.order {
		if keep[ext] {
			order = append(order, ext)
		} else {
			delete(r.decoders, ext)
		}
	}
	r.order = order
}

// Supports reports whether filename has a registered extension.
func (r *Registry) Supports(filename string) bool {
	_, ok := r.decoders[Extension(filename)]
	return ok
}

// Extensions lists the registered extensions in registration order.
func (r *Registry) Extensions() []string {
	return slices.Clone(r.order)
}

// CheckExtension returns a validation error naming the allowed types when
// filename is not supported.
func (r *Registry) CheckExtension(filename string) error {
	if r.Supports(filename) {
		return nil
	}
	allowed := make([]string, 0, len(r.decoders))
	for _, ext := range r.Extensions() {
		allowed = append(allowed, "."+ext)
	}
	return errors.NewValidationError(errors.ErrCodeUnsupportedFileType,
		fmt.Sprintf("Unsupported file type: .%s. Allowed types: %s", Extension(filename), strings.Join(allowed, ", ")), nil).
		WithContext("filename", filename)
}

// Extract decodes the document at path, choosing the decoder by the
// extension of name (the original upload name, which may differ from path).
func (r *Registry) Extract(name, path string) (string, error) {
	if err := r.CheckExtension(name); err != nil {
		return "", err
	}
	text, err := r.decoders[Extension(name)].Decode(path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return "", err
		}
		return "", errors.NewDecodingError(errors.ErrCodeDecodeFailed,
			fmt.Sprintf("Error extracting text from %s: %v", name, err), err).
			WithContext("filename", name)
	}
	return text, nil
}

// Extension returns the lowercased extension of filename without the dot.
func Extension(filename string) string {
	return utils.GetFileExtension(filename)
}

func normalize(ext string) string {
	return utils.NormalizeExtension(ext)
}
