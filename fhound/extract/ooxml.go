package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"io"
	"path/filepath"
	"strings"
)

// ooxmlExtract pulls the text runs out of an Office Open XML container
// (.docx, .xlsx, .pptx). The archive entries are streamed through an XML
// token decoder, so only character data is ever buffered, never the markup.
func ooxmlExtract(ctx context.Context, path string, maxBytes int64) (string, error) {
	if _, err := statRegular(path); err != nil {
		return "", err
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	ext := strings.ToLower(filepath.Ext(path))
	var sb strings.Builder
	var approx int64
	for _, entry := range zr.File {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !ooxmlEntryHasText(ext, strings.ToLower(entry.Name)) {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			continue
		}
		approx = streamCharData(ctx, rc, &sb, approx, maxBytes)
		rc.Close()
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if approx >= maxBytes {
			break
		}
	}
	return sb.String(), nil
}

// ooxmlEntryHasText filters the archive down to the parts that hold document
// text: word/ for documents, xl/ for workbooks (shared strings and sheets),
// ppt/ for slides.
func ooxmlEntryHasText(ext, name string) bool {
	if !strings.HasSuffix(name, ".xml") {
		return false
	}
	switch ext {
	case ".docx":
		return strings.HasPrefix(name, "word/")
	case ".xlsx":
		return strings.HasPrefix(name, "xl/")
	case ".pptx":
		return strings.HasPrefix(name, "ppt/")
	default:
		return false
	}
}

func streamCharData(ctx context.Context, r io.Reader, sb *strings.Builder, approx, maxBytes int64) int64 {
	dec := xml.NewDecoder(r)
	for {
		if ctx.Err() != nil {
			return approx
		}
		tok, err := dec.Token()
		if err != nil {
			return approx
		}
		if cd, ok := tok.(xml.CharData); ok && len(cd) > 0 {
			sb.Write(cd)
			sb.WriteByte(' ')
			approx += int64(len(cd)) + 1
			if approx >= maxBytes {
				return approx
			}
		}
	}
}
