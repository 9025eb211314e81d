package textsource

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cvmatcher/internal/errors"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeDOCX(t *testing.T, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resume.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckExtension(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		filename string
		wantErr  bool
	}{
		{"resume.pdf", false},
		{"RESUME.PDF", false},
		{"cv.Docx", false},
		{"notes.txt", false},
		{"photo.png", true},
		{"archive.tar.gz", true},
		{"noextension", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			err := registry.CheckExtension(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckExtension(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
			}
			if err != nil && !errors.IsType(err, errors.ErrorTypeValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestUnsupportedMessage(t *testing.T) {
	err := NewRegistry().CheckExtension("photo.png")
	appErr, ok := errors.As(err)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	want := "Unsupported file type: .png. Allowed types: .pdf, .docx, .txt"
	if appErr.Message != want {
		t.Errorf("message = %q, want %q", appErr.Message, want)
	}
}

func TestRestrict(t *testing.T) {
	registry := NewRegistry()
	registry.Restrict([]string{".TXT", "pdf"})

	if registry.Supports("cv.docx") {
		t.Error("docx should have been removed")
	}
	if got := strings.Join(registry.Extensions(), ","); got != "pdf,txt" {
		t.Errorf("Extensions() = %s", got)
	}
}

func TestDecodeText(t *testing.T) {
	path := writeFile(t, "cv.txt", []byte("\xef\xbb\xbfJane Doe\nEngineer\n"))
	text, err := DecodeText(path)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if text != "Jane Doe\nEngineer\n" {
		t.Errorf("text = %q", text)
	}
}

func TestDecodeTextRejectsBinary(t *testing.T) {
	path := writeFile(t, "cv.txt", []byte{0xff, 0xfe, 0x00, 0x41})
	if _, err := DecodeText(path); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestDecodeDOCX(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Jane</w:t></w:r><w:r><w:t xml:space="preserve"> Doe</w:t></w:r></w:p>
    <w:p><w:r><w:t>Senior</w:t><w:tab/><w:t>Developer</w:t></w:r></w:p>
    <w:p></w:p>
    <w:p><w:r><w:t>Go &amp; Kubernetes</w:t></w:r></w:p>
  </w:body>
</w:document>`
	text, err := DecodeDOCX(writeDOCX(t, doc))
	if err != nil {
		t.Fatalf("DecodeDOCX: %v", err)
	}
	want := "Jane Doe\nSenior\tDeveloper\n\nGo & Kubernetes"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestDecodeDOCXKeepsOnlyBodyParagraphs(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:tbl>
      <w:tr><w:tc><w:p><w:r><w:t>Contact: 555-1234</w:t></w:r></w:p></w:tc></w:tr>
    </w:tbl>
    <w:p>
      <w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr>
      <w:r><w:t>Jane Doe</w:t></w:r>
    </w:p>
    <w:p>
      <w:hyperlink><w:r><w:t>Painter</w:t></w:r></w:hyperlink>
      <w:r><w:drawing><wp:inline xmlns:wp="urn:wp"><w:txbxContent><w:p><w:r><w:t>Boxed</w:t></w:r></w:p></w:txbxContent></wp:inline></w:drawing></w:r>
    </w:p>
  </w:body>
</w:document>`
	text, err := DecodeDOCX(writeDOCX(t, doc))
	if err != nil {
		t.Fatalf("DecodeDOCX: %v", err)
	}
	if want := "Jane Doe\nPainter"; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestDecodeDOCXNotAZip(t *testing.T) {
	path := writeFile(t, "cv.docx", []byte("plain text pretending to be docx"))
	if _, err := DecodeDOCX(path); err == nil {
		t.Error("expected error for non-zip input")
	}
}

func TestDecodePDFCorrupt(t *testing.T) {
	path := writeFile(t, "cv.pdf", []byte("%PDF-1.4\nthis is not really a pdf"))
	if _, err := DecodePDF(path); err == nil {
		t.Error("expected error for corrupt pdf")
	}
}

func TestExtractWrapsDecodeErrors(t *testing.T) {
	registry := NewRegistry()
	path := writeFile(t, "upload.bin", []byte("not a zip"))

	_, err := registry.Extract("cv.docx", path)
	if !errors.IsType(err, errors.ErrorTypeDecoding) {
		t.Fatalf("expected decoding error, got %v", err)
	}
	if !strings.Contains(err.Error(), "cv.docx") {
		t.Errorf("error should name the upload: %v", err)
	}
}

func TestExtractUsesUploadName(t *testing.T) {
	registry := NewRegistry()
	path := writeFile(t, "spooled-123", []byte("Jane Doe"))

	text, err := registry.Extract("jane.txt", path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "Jane Doe" {
		t.Errorf("text = %q", text)
	}
}

func TestSpool(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	spool, err := NewSpool(root)
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}

	path, release, err := spool.Write("../../etc/passwd.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Dir(path) != spool.Dir() {
		t.Errorf("spooled file escaped scratch dir: %s", path)
	}
	if !strings.HasSuffix(path, "passwd.txt") {
		t.Errorf("extension not preserved: %s", path)
	}

	release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still present after release: %v", err)
	}

	if _, _, err := spool.Write("left-behind.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := spool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(spool.Dir()); !os.IsNotExist(err) {
		t.Error("scratch directory still present after Close")
	}
}

func TestSweep(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.txt", "b.pdf"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range []string{"upload-123", "upload-456"} {
		if err := os.MkdirAll(filepath.Join(root, name, "nested"), 0750); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := Sweep(root)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, err := os.Stat(filepath.Join(root, "a.txt")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}

	if n, err := Sweep(filepath.Join(root, "missing")); err != nil || n != 0 {
		t.Errorf("Sweep(missing) = %d, %v", n, err)
	}
}
