package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Pure-Go PDF parsing can blow up memory on pathological files, so inputs
// above this size are refused outright.
const pdfMaxFileBytes = 20 * 1024 * 1024

func pdfExtract(ctx context.Context, path string, maxBytes int64) (string, error) {
	info, err := statRegular(path)
	if err != nil {
		return "", err
	}
	if info.Size() > pdfMaxFileBytes {
		return "", fmt.Errorf("%w: %d bytes", errTooLarge, info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var approx int64
	pages := r.NumPage()
	// Font cache shared across pages; most documents reuse a handful of
	// fonts, and resolving one is expensive.
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; ok {
				continue
			}
			font := p.Font(name)
			fonts[name] = &font
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return "", err
		}
		if text == "" {
			continue
		}
		if remaining := maxBytes - approx; int64(len(text)) > remaining {
			text = text[:remaining]
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
		approx += int64(len(text)) + 1
		if approx >= maxBytes {
			break
		}
	}
	return sb.String(), nil
}
