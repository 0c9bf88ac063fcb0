package extract

import (
	"io"
	"os"
	"unicode/utf16"
	"unicode/utf8"
)

// textExtract reads a plain-text file up to maxBytes and decodes it,
// honoring UTF-8 and UTF-16 byte order marks.
func textExtract(path string, maxBytes int64) (string, error) {
	if _, err := statRegular(path); err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return "", err
	}
	return decodeText(b), nil
}

func decodeText(b []byte) string {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return string(b[3:])
	}
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xFE {
		return decodeUTF16(b[2:], true)
	}
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		return decodeUTF16(b[2:], false)
	}
	if utf8.Valid(b) {
		return string(b)
	}
	// Not valid UTF-8 and no BOM: treat each byte as a Latin-1 code point
	// rather than injecting replacement runes mid-word.
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func decodeUTF16(b []byte, littleEndian bool) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	u16 := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		var v uint16
		if littleEndian {
			v = uint16(b[i]) | uint16(b[i+1])<<8
		} else {
			v = uint16(b[i+1]) | uint16(b[i])<<8
		}
		u16 = append(u16, v)
	}
	return string(utf16.Decode(u16))
}
