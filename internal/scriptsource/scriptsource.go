// Package scriptsource turns uploaded script files into narration lines.
// Plain text splits on newlines; PDFs go through page text extraction.
// Every non-empty line becomes one scene, content kept verbatim.
package scriptsource

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
)

// Lines sniffs the payload type and extracts narration lines from it.
func Lines(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty script upload")
	}

	kind := mimetype.Detect(data)
	switch {
	case isKind(kind, "text/plain"):
		lines := splitLines(string(data))
		if len(lines) == 0 {
			return nil, fmt.Errorf("script contains no text")
		}
		return lines, nil
	case isKind(kind, "application/pdf"):
		return pdfLines(data)
	default:
		return nil, fmt.Errorf("unsupported script type %q", kind.String())
	}
}

func pdfLines(data []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		pages = append(pages, text)
	}

	lines := splitLines(strings.Join(pages, "\n"))
	if len(lines) == 0 {
		return nil, fmt.Errorf("pdf contains no text")
	}
	return lines, nil
}

func splitLines(text string) []string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// isKind walks the detection hierarchy so text subtypes (csv, markdown)
// still count as plain text.
func isKind(kind *mimetype.MIME, want string) bool {
	for k := kind; k != nil; k = k.Parent() {
		if k.Is(want) {
			return true
		}
	}
	return false
}
