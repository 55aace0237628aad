package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Document is the extracted plain text of one source file.
type Document struct {
	ID    string
	Path  string
	Text  string
	Pages int
}

// supportedExtensions maps lower-case extensions to extractors.
var supportedExtensions = map[string]func(path string) (string, int, error){
	".pdf":  extractPDF,
	".html": extractHTML,
	".htm":  extractHTML,
	".txt":  extractPlain,
	".md":   extractPlain,
}

// Supported reports whether path has an extension the loader can read.
func Supported(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// DocumentID returns the identifier used for a file: its base name.
func DocumentID(path string) string {
	return filepath.Base(path)
}

// Load extracts the text of the file at path.
func Load(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	extract, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Document{}, fmt.Errorf("unsupported document type %q", filepath.Ext(path))
	}
	text, pages, err := extract(path)
	if err != nil {
		return Document{}, fmt.Errorf("loading %s: %w", path, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Document{}, fmt.Errorf("loading %s: no text extracted", path)
	}
	return Document{ID: DocumentID(path), Path: path, Text: text, Pages: pages}, nil
}

func extractPlain(path string) (string, int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	return string(b), 1, nil
}

// extractPDF concatenates the plain text of every page.
func extractPDF(path string) (string, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	var sb strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return sb.String(), pages, nil
}

func extractHTML(path string) (string, int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	doc, err := html.Parse(bytes.NewReader(b))
	if err != nil {
		return "", 0, err
	}
	var sb strings.Builder
	htmlText(doc, &sb)
	return collapseBlankLines(sb.String()), 1, nil
}

// htmlText writes the visible text under n, starting a new paragraph at
// block-level elements.
func htmlText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template", "svg", "head":
			return
		case "p", "div", "section", "article", "h1", "h2", "h3", "h4", "h5", "h6", "li", "tr", "table", "blockquote":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		htmlText(c, sb)
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, l)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
