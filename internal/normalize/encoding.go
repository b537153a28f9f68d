package normalize

import (
	"bytes"
	"io"
	"mime"
	"mime/quotedprintable"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"
)

// legacyDecoders are tried in order for bytes that are not valid UTF-8.
var legacyDecoders = []*charmap.Charmap{
	charmap.Windows1254,
	charmap.ISO8859_9,
	charmap.ISO8859_1,
}

// ToUTF8 re-encodes s to UTF-8 and converts CRLF and lone CR line endings
// to LF. Valid UTF-8 is kept as is; each byte that is not part of a valid
// UTF-8 sequence is decoded with the Turkish and Western code pages, so
// a body mixing both encodings survives.
func ToUTF8(s string) string {
	if !utf8.ValidString(s) {
		s = repairUTF8(s)
	}
	if strings.IndexByte(s, '\r') >= 0 {
		s = strings.ReplaceAll(s, "\r\n", "\n")
		s = strings.ReplaceAll(s, "\r", "\n")
	}
	return s
}

func repairUTF8(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(legacyRune(s[i]))
		} else {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

func legacyRune(c byte) rune {
	for _, cm := range legacyDecoders {
		if r := cm.DecodeByte(c); r != utf8.RuneError {
			return r
		}
	}
	return utf8.RuneError
}

// qpTrigger matches a quoted-printable escape or soft line break.
var qpTrigger = regexp.MustCompile(`=(?:[0-9A-Fa-f]{2}|\n)`)

// DecodeQuotedPrintable decodes quoted-printable escapes and soft line
// breaks outside RFC 2047 encoded words. Segments the decoder rejects are
// kept unchanged.
func DecodeQuotedPrintable(s string) string {
	if !qpTrigger.MatchString(s) {
		return s
	}
	return outsideEncodedWords(s, decodeQPSegment)
}

func decodeQPSegment(seg string) string {
	if !qpTrigger.MatchString(seg) {
		return seg
	}

	out, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(seg)))
	if err != nil {
		return seg
	}
	return ToUTF8(string(out))
}

// outsideEncodedWords applies fn to the text between encoded words.
func outsideEncodedWords(s string, fn func(string) string) string {
	locs := encodedWordPattern.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return fn(s)
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(fn(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(fn(s[last:]))
	return b.String()
}

// encodedWordPattern matches RFC 2047 encoded words.
var encodedWordPattern = regexp.MustCompile(`(?i)=\?[A-Za-z0-9_\-.:]+(?:\*[A-Za-z\-]+)?\?[BQ]\?[^?\s]*\?=`)

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeEncodedWords decodes =?charset?B?...?= and =?charset?Q?...?=
// sequences to UTF-8. Whitespace between two adjacent encoded words is
// dropped, as RFC 2047 requires. Words that fail to decode are kept.
func DecodeEncodedWords(s string) string {
	if !strings.Contains(s, "=?") {
		return s
	}

	locs := encodedWordPattern.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}

	var b strings.Builder
	last := 0
	prevDecoded := false
	for _, loc := range locs {
		between := s[last:loc[0]]
		word := s[loc[0]:loc[1]]

		decoded, err := wordDecoder.Decode(word)
		if err != nil {
			b.WriteString(between)
			b.WriteString(word)
			prevDecoded = false
			last = loc[1]
			continue
		}

		if !(prevDecoded && strings.TrimSpace(between) == "") {
			b.WriteString(between)
		}
		b.WriteString(decoded)
		prevDecoded = true
		last = loc[1]
	}
	b.WriteString(s[last:])

	return ToUTF8(b.String())
}

// hexRunPattern matches runs of =XX escapes.
var hexRunPattern = regexp.MustCompile(`(?:=[0-9A-F]{2})+`)

// DecodeHexEscapes decodes leftover =XX octet runs. A run is replaced
// only when its bytes form printable UTF-8 text.
func DecodeHexEscapes(s string) string {
	if !strings.Contains(s, "=") {
		return s
	}

	return hexRunPattern.ReplaceAllStringFunc(s, func(run string) string {
		buf := make([]byte, 0, len(run)/3)
		for i := 0; i+2 < len(run); i += 3 {
			v, err := strconv.ParseUint(run[i+1:i+3], 16, 8)
			if err != nil {
				return run
			}
			buf = append(buf, byte(v))
		}
		if !printable(buf) {
			return run
		}
		return string(buf)
	})
}

func printable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(bytes.TrimSpace(b)) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return len(bytes.TrimSpace(b)) > 0
}

// DecodeEntities decodes HTML character references.
func DecodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return html.UnescapeString(s)
}
