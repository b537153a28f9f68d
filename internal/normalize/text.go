package normalize

import (
	"regexp"
	"strings"
)

// signatureDelimiter matches the "-- " line that opens a signature. The
// trailing space is optional because some decoders strip it.
var signatureDelimiter = regexp.MustCompile(`(?m)^--[ \t]*$`)

// signatureScanLimit is how many trailing "-- " delimiters
// CollapseRepeatedSignature considers.
const signatureScanLimit = 32

// CollapseRepeatedSignature collapses a signature block that is repeated
// back to back (a common artefact of clients quoting their own footer)
// into a single copy. Only runs that reach into the last
// signatureScanLimit delimiters are collapsed.
func CollapseRepeatedSignature(s string) string {
	locs := signatureDelimiter.FindAllStringIndex(s, -1)
	if len(locs) < 2 {
		return s
	}

	from := 0
	if len(locs) > signatureScanLimit {
		from = locs[len(locs)-signatureScanLimit][0]
	}
	return collapseFrom(s, from)
}

// collapseFrom collapses the first run whose copies start at or after
// from, extending it backwards over earlier copies, and repeats on the
// shortened text. from is always at the start of a line.
func collapseFrom(s string, from int) string {
	locs := signatureDelimiter.FindAllStringIndex(s[from:], -1)
	if len(locs) < 2 {
		return s
	}
	for _, loc := range locs {
		loc[0] += from
		loc[1] += from
	}

	for i := 0; i < len(locs)-1; i++ {
		start := locs[i][0]
		for j := i + 1; j < len(locs); j++ {
			block := s[start:locs[j][0]]
			if !strings.HasPrefix(s[locs[j][0]:], block) {
				continue
			}

			end := locs[j][0]
			for strings.HasPrefix(s[end:], block) {
				end += len(block)
			}
			for strings.HasSuffix(s[:start], block) {
				start -= len(block)
			}
			return collapseFrom(s[:start]+block+s[end:], min(from, start))
		}
	}

	// The last copy of a repeated block usually runs to the end of the
	// text without a trailing newline.
	for i := 0; i < len(locs)-1; i++ {
		start := locs[i][0]
		full := s[start:locs[i+1][0]]
		block := strings.TrimRight(full, "\n")
		tail := strings.TrimRight(s[locs[i+1][0]:], "\n")
		if block != "" && block == tail {
			for strings.HasSuffix(s[:start], full) {
				start -= len(full)
			}
			return s[:start] + block
		}
	}

	return s
}

// signatureWindow is how many trailing lines TruncateSignature inspects.
const signatureWindow = 8

// signatureStart matches lines that commonly open a signature or a
// client footer.
var signatureStart = regexp.MustCompile(`(?i)^(?:--\s*|_{2,}|sent from my .*|get outlook for .*|saygılarımızla,?|saygılarımla,?|iyi çalışmalar,?|best regards,?|kind regards,?|regards,?)$`)

// TruncateSignature drops everything from the earliest signature-start
// line found within the last signatureWindow lines.
func TruncateSignature(s string) string {
	lines := strings.Split(s, "\n")
	lo := len(lines) - signatureWindow
	if lo < 0 {
		lo = 0
	}

	cut := -1
	for i := len(lines) - 1; i >= lo; i-- {
		if signatureStart.MatchString(strings.TrimSpace(lines[i])) {
			cut = i
		}
	}
	if cut <= 0 {
		return s
	}
	return strings.Join(lines[:cut], "\n")
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t\x{00A0}]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// NormalizeWhitespace converts line endings to LF, collapses runs of
// horizontal whitespace to one space and limits blank lines to one.
func NormalizeWhitespace(s string) string {
	if strings.IndexByte(s, '\r') >= 0 {
		s = strings.ReplaceAll(s, "\r\n", "\n")
		s = strings.ReplaceAll(s, "\r", "\n")
	}
	s = horizontalSpace.ReplaceAllString(s, " ")
	return blankLines.ReplaceAllString(s, "\n\n")
}
