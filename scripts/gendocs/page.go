package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/dbtlineage/internal/cli/output"
)

const generatedMarker = "<!-- Code generated by scripts/gendocs. DO NOT EDIT. -->"

// page is one generated markdown document.
type page struct {
	*output.Renderer
	buf *bytes.Buffer
}

func newPage(title, description string) *page {
	buf := &bytes.Buffer{}
	p := &page{Renderer: output.NewRenderer(buf, io.Discard, output.ModeMarkdown), buf: buf}
	p.Printf("---\ntitle: %s\ndescription: %s\n---\n\n", title, description)
	p.Println(generatedMarker)
	p.Println()
	return p
}

// Paragraph writes text followed by a blank line.
func (p *page) Paragraph(text string) {
	p.Println(strings.TrimSpace(text))
	p.Println()
}

// Code writes a fenced code block.
func (p *page) Code(lang, code string) {
	p.Println(output.FormatCodeBlock(lang, code))
	p.Println()
}

func (p *page) write(dir, name string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, name), p.buf.Bytes(), 0o600)
}

func inlineCode(s string) string {
	return "`" + s + "`"
}

// cleanDescription flattens a flag or command description to one line.
func cleanDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
