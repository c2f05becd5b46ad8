package detect

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding identifies the character encoding of a text file.
type Encoding int

const (
	EncodingUTF8 Encoding = iota
	EncodingUTF8BOM
	EncodingUTF16LE
	EncodingUTF16BE
	EncodingWindows1252
	EncodingISO88591
)

func (e Encoding) String() string {
	switch e {
	case EncodingUTF8:
		return "UTF-8"
	case EncodingUTF8BOM:
		return "UTF-8 (BOM)"
	case EncodingUTF16LE:
		return "UTF-16LE"
	case EncodingUTF16BE:
		return "UTF-16BE"
	case EncodingWindows1252:
		return "Windows-1252"
	case EncodingISO88591:
		return "ISO-8859-1"
	default:
		return "unknown"
	}
}

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// DetectEncoding sniffs a byte order mark first. Without one, valid UTF-8
// containing accented Latin letters is UTF-8. Everything else falls back
// to a legacy single-byte Western encoding: ISO-8859-1 when no byte of the
// Windows-1252 0x80–0x9F block occurs, Windows-1252 otherwise and for
// plain ASCII. data should be the whole file so that a sample cut inside
// a multi-byte rune is not mistaken for a legacy encoding.
func DetectEncoding(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		return EncodingUTF8BOM
	case bytes.HasPrefix(data, utf16LEBOM):
		return EncodingUTF16LE
	case bytes.HasPrefix(data, utf16BEBOM):
		return EncodingUTF16BE
	}

	if utf8.Valid(data) {
		if hasLatinAccents(data) {
			return EncodingUTF8
		}
		for _, b := range data {
			if b >= 0x80 {
				// Multi-byte runes outside the Latin blocks.
				return EncodingUTF8
			}
		}
		return EncodingWindows1252
	}

	for _, b := range data {
		if b >= 0x80 && b <= 0x9F {
			return EncodingWindows1252
		}
	}
	return EncodingISO88591
}

// hasLatinAccents reports whether data holds at least one decoded rune in
// the Latin-1 Supplement or Latin Extended-A blocks.
func hasLatinAccents(data []byte) bool {
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r >= 0xC0 && r <= 0x17F {
			return true
		}
		data = data[size:]
	}
	return false
}

func (e Encoding) decoder() encoding.Encoding {
	switch e {
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	case EncodingWindows1252:
		return charmap.Windows1252
	case EncodingISO88591:
		return charmap.ISO8859_1
	default:
		return nil
	}
}

// Decode converts data to UTF-8, stripping any byte order mark.
func Decode(data []byte, enc Encoding) ([]byte, error) {
	if enc == EncodingUTF8 || enc == EncodingUTF8BOM {
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("file is not valid %s", enc)
		}
		return data, nil
	}

	dec := enc.decoder()
	if dec == nil {
		return nil, fmt.Errorf("unsupported encoding %s", enc)
	}
	out, _, err := transform.Bytes(dec.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", enc, err)
	}
	return out, nil
}
