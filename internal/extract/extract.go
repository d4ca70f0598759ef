// Package extract pulls plain text out of uploaded files. Unknown and
// binary formats yield empty text, never an error.
package extract

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

type Kind string

const (
	KindNone     Kind = ""
	KindText     Kind = "text"
	KindMarkdown Kind = "markdown"
	KindPDF      Kind = "pdf"
	KindDOCX     Kind = "docx"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var textSuffixes = map[string]Kind{
	".txt":      KindText,
	".csv":      KindText,
	".json":     KindText,
	".log":      KindText,
	".md":       KindMarkdown,
	".markdown": KindMarkdown,
}

// Detect picks an extractor from the file extension, then the content type.
func Detect(filename, contentType string) Kind {
	ext := strings.ToLower(filepath.Ext(filename))
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if kind, ok := textSuffixes[ext]; ok {
		return kind
	}
	switch {
	case ext == ".pdf" || ct == "application/pdf":
		return KindPDF
	case ext == ".docx" || ct == docxContentType:
		return KindDOCX
	case ct == "text/markdown" || ct == "text/x-markdown":
		return KindMarkdown
	case strings.HasPrefix(ct, "text/"):
		return KindText
	}
	return KindNone
}

// Text returns the readable text of data. Parse failures of rich formats
// are reported so callers can log them; the text is empty in that case.
func Text(filename, contentType string, data []byte) (string, error) {
	switch Detect(filename, contentType) {
	case KindText:
		return decodeText(data), nil
	case KindMarkdown:
		return Markdown(decodeText(data)), nil
	case KindPDF:
		return pdfText(data)
	case KindDOCX:
		return docxText(data)
	}
	return "", nil
}

func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return strings.ToValidUTF8(string(data), "")
}

// pdfText recovers from parser panics, which malformed files can trigger.
func pdfText(data []byte) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("read pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", err
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}
	return strings.ToValidUTF8(sb.String(), ""), nil
}

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>|<w:br\s*/>|<w:cr\s*/>`)
	docxTab          = regexp.MustCompile(`<w:tab\s*/>`)
	xmlTag           = regexp.MustCompile(`<[^>]+>`)
)

func docxText(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer r.Close()
	content := r.Editable().GetContent()
	content = docxParagraphEnd.ReplaceAllString(content, "\n")
	content = docxTab.ReplaceAllString(content, "\t")
	content = xmlTag.ReplaceAllString(content, "")
	return strings.TrimSpace(html.UnescapeString(content)), nil
}

// ReadAll reads at most limit bytes of r. A non-positive limit reads all.
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	return io.ReadAll(r)
}
