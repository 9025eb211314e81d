package textsource

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// DecodePDF extracts the text layer of a PDF.
func DecodePDF(path string) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

const docxBody = "word/document.xml"

// DecodeDOCX extracts paragraph text from an Office Open XML document,
// one line per paragraph.
func DecodeDOCX(path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer archive.Close()

	for _, file := range archive.File {
		if file.Name != docxBody {
			continue
		}
		body, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", docxBody, err)
		}
		defer body.Close()
		return paragraphs(body)
	}
	return "", fmt.Errorf("%s not found", docxBody)
}

// paragraphs walks WordprocessingML and returns the text of the paragraphs
// that are direct children of w:body, one line each. Tables, text boxes and
// other nested content are skipped. Within a paragraph only run content
// (w:t, w:tab, w:br, w:cr), directly or through a hyperlink, is kept.
func paragraphs(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var (
		stack     []string
		line      strings.Builder
		lines     []string
		paraDepth int // stack depth of the open top-level paragraph, 0 when none
		inText    bool
	)

	// runChild reports whether the element on top of the stack sits directly
	// inside a run of the open paragraph.
	runChild := func() bool {
		if paraDepth == 0 {
			return false
		}
		n := len(stack)
		switch {
		case n == paraDepth+2:
			return stack[paraDepth] == "r"
		case n == paraDepth+3:
			return stack[paraDepth] == "hyperlink" && stack[paraDepth+1] == "r"
		}
		return false
	}

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", docxBody, err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			n := len(stack)
			switch t.Name.Local {
			case "p":
				if paraDepth == 0 && n >= 2 && stack[n-2] == "body" {
					paraDepth = n
				}
			case "t":
				inText = runChild()
			case "tab":
				if runChild() {
					line.WriteByte('\t')
				}
			case "br", "cr":
				if runChild() {
					line.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if len(stack) == paraDepth {
					lines = append(lines, line.String())
					line.Reset()
					paraDepth = 0
				}
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}

// DecodeText reads a UTF-8 text file, dropping a leading byte-order mark.
func DecodeText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid UTF-8 text")
	}
	return string(data), nil
}
