package extract

import (
	"compress/gzip"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"
)

// cacheHeaderLen is the fixed prefix of every cache file: the source file's
// mtime (nanoseconds) and size, little-endian, followed by the gzipped text.
const cacheHeaderLen = 16

// ExtractFunc produces the plain text of a file.
type ExtractFunc func(ctx context.Context, path string) (string, error)

// Cache stores extracted text on disk so unchanged documents are never
// parsed twice. Entries validate against the source file's size and mtime,
// so there is no separate invalidation path.
type Cache struct {
	root         string
	maxTextBytes int64
}

// NewCache creates a cache rooted at dir.
func NewCache(dir string, maxTextBytes int64) *Cache {
	if maxTextBytes <= 0 {
		maxTextBytes = 2 * 1024 * 1024
	}
	return &Cache{root: dir, maxTextBytes: maxTextBytes}
}

// GetOrExtract returns the cached text for path if it is still valid,
// otherwise runs fn and stores the result. Cache write failures are
// swallowed: the extracted text is still returned.
func (c *Cache) GetOrExtract(ctx context.Context, path string, fn ExtractFunc) (string, error) {
	info, err := statRegular(path)
	if err != nil {
		return "", err
	}

	entryPath := c.entryPath(path)
	if text, ok := c.tryRead(entryPath, info.Size(), info.ModTime()); ok {
		return text, nil
	}

	text, err := fn(ctx, path)
	if err != nil {
		return "", err
	}
	if int64(len(text)) > c.maxTextBytes {
		text = truncateUTF8(text, int(c.maxTextBytes))
	}
	_ = c.write(entryPath, info.Size(), info.ModTime(), text)
	return text, nil
}

// entryPath shards entries by the first two hex digits of the source path
// hash to keep directory listings small.
func (c *Cache) entryPath(sourcePath string) string {
	sum := sha1.Sum([]byte(sourcePath))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(c.root, name[:2], name+".gz")
}

func (c *Cache) tryRead(entryPath string, size int64, mtime time.Time) (string, bool) {
	f, err := os.Open(entryPath)
	if err != nil {
		return "", false
	}
	defer f.Close()

	hdr := make([]byte, cacheHeaderLen)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return "", false
	}
	cachedMtime := int64(binary.LittleEndian.Uint64(hdr[0:8]))
	cachedSize := int64(binary.LittleEndian.Uint64(hdr[8:16]))
	if cachedSize != size || cachedMtime != mtime.UnixNano() {
		return "", false
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		return "", false
	}
	defer zr.Close()

	b, err := io.ReadAll(io.LimitReader(zr, c.maxTextBytes+1))
	if err != nil {
		return "", false
	}
	if int64(len(b)) > c.maxTextBytes {
		b = b[:c.maxTextBytes]
	}
	return string(b), true
}

// write replaces the entry atomically: the temp file is fully written and
// closed before the rename, so a concurrent reader never sees a torn entry.
func (c *Cache) write(entryPath string, size int64, mtime time.Time, text string) error {
	if err := os.MkdirAll(filepath.Dir(entryPath), 0o755); err != nil {
		return err
	}
	tmp := entryPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		f.Close()
		os.Remove(tmp)
	}()

	hdr := make([]byte, cacheHeaderLen)
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(mtime.UnixNano()))
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(size))
	if _, err := f.Write(hdr); err != nil {
		return err
	}

	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(text))
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, entryPath)
}

// truncateUTF8 cuts s to at most maxBytes without splitting a rune.
func truncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
