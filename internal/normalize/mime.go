package normalize

import (
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
)

// Placeholders left where binary blocks were removed.
const (
	AttachmentPlaceholder  = "[EK KALDIRILDI]"
	InlineImagePlaceholder = "[GÖRSEL KALDIRILDI]"
)

// minPlainPart is the shortest text/plain part accepted over the body.
const minPlainPart = 5

var (
	contentTypeTrigger = regexp.MustCompile(`(?i)content-type:`)
	boundaryParam      = regexp.MustCompile(`(?i)boundary="?([^";\s]+)"?`)
	boundaryLine       = regexp.MustCompile(`(?m)^--([0-9A-Za-z'()+_,./:=?][0-9A-Za-z'()+_,./:=?-]*?)(?:--)?[ \t]*$`)

	// plainPartPattern is the structural fallback used when the body
	// cannot be read as multipart.
	plainPartPattern = regexp.MustCompile(`(?is)Content-Type:\s*text/plain(?:;|\s).*?\n\n(.*?)(?:\n--[0-9A-Za-z'()+_,./:=?-]+|\z)`)
)

// ExtractPlainPart isolates the text/plain part of a multipart body,
// decoded from its transfer encoding and charset. When the body has no
// plain part but has an HTML part, the decoded HTML part is returned so
// later stages can strip it. Bodies without MIME structure are returned
// unchanged.
func ExtractPlainPart(s string) string {
	if !contentTypeTrigger.MatchString(s) {
		return s
	}

	if boundary := findBoundary(s); boundary != "" {
		if plain, htmlPart, ok := walkParts(s, boundary); ok {
			switch {
			case len(strings.TrimSpace(plain)) > minPlainPart:
				return plain
			case strings.TrimSpace(htmlPart) != "":
				return htmlPart
			}
		}
	}

	if m := plainPartPattern.FindStringSubmatch(s); m != nil && len(strings.TrimSpace(m[1])) > minPlainPart {
		return m[1]
	}
	return s
}

func findBoundary(s string) string {
	if m := boundaryParam.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := boundaryLine.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// walkParts reads s as the body of a multipart entity delimited by
// boundary and returns the first text/plain and text/html leaf bodies.
func walkParts(s, boundary string) (plain, htmlPart string, ok bool) {
	var h message.Header
	h.SetContentType("multipart/mixed", map[string]string{"boundary": boundary})

	body := s
	// A body that still carries its own header block starts at the first
	// boundary line.
	if i := strings.Index(body, "--"+boundary); i > 0 {
		body = body[i:]
	}

	entity, err := message.New(h, strings.NewReader(body))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", "", false
	}

	found := false
	walkErr := entity.Walk(func(_ []int, part *message.Entity, err error) error {
		if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
			return err
		}
		if part.MultipartReader() != nil {
			return nil
		}

		mediaType, _, _ := part.Header.ContentType()
		disposition, _, _ := part.Header.ContentDisposition()
		if disposition == "attachment" {
			return nil
		}

		switch mediaType {
		case "text/plain":
			if plain != "" {
				return nil
			}
			b, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				return nil
			}
			plain = ToUTF8(string(b))
			found = true
		case "text/html":
			if htmlPart != "" {
				return nil
			}
			b, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				return nil
			}
			htmlPart = ToUTF8(string(b))
			found = true
		}
		return nil
	})
	if walkErr != nil && !found {
		return "", "", false
	}

	return plain, htmlPart, found
}

var (
	attachmentBlock  = regexp.MustCompile(`(?is)--[^\n]*\nContent-Type:\s*(?:image|application)/.*?Content-Transfer-Encoding:\s*base64[^\n]*\n(?:[^\n]+\n)*?\n[A-Za-z0-9/+\n=]+`)
	inlineImageBlock = regexp.MustCompile(`(?is)Content-ID:[^\n]*\nX-Attachment-Id:[^\n]*\n\n[A-Za-z0-9/+\n=]+`)
)

// StripBinaryBlocks replaces base64 attachment and inline image blocks
// with placeholders so their presence stays visible.
func StripBinaryBlocks(s string) string {
	if !strings.Contains(strings.ToLower(s), "base64") && !strings.Contains(strings.ToLower(s), "x-attachment-id") {
		return s
	}

	s = attachmentBlock.ReplaceAllString(s, AttachmentPlaceholder+"\n")
	s = inlineImageBlock.ReplaceAllString(s, InlineImagePlaceholder+"\n")
	return s
}

var (
	delimiterLine = regexp.MustCompile(`(?m)^--[0-9A-Za-z][0-9A-Za-z'()+_,./:=?-]*[ \t]*(?:\n|\z)`)

	// structuralHeader matches a residual MIME header or parameter up to
	// the end of its line.
	structuralHeader = regexp.MustCompile(`(?i)(?:Content-ID:|X-Attachment-Id:|Content-Disposition:|Content-Transfer-Encoding:|Content-Type:|MIME-Version:|boundary=|charset=)[^\n]*(?:\n|\z)`)
)

// StripMIMEStructure removes boundary delimiter lines and residual
// structural headers.
func StripMIMEStructure(s string) string {
	if !strings.Contains(s, "--") && !strings.Contains(s, "=") && !strings.Contains(s, ":") {
		return s
	}

	s = delimiterLine.ReplaceAllString(s, "")
	s = structuralHeader.ReplaceAllString(s, "")
	return s
}
