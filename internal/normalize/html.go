package normalize

import (
	"regexp"
	"strings"

	"github.com/jaytaylor/html2text"
	"golang.org/x/net/html"
)

// tagTrigger matches anything that could open a tag, comment or doctype.
var tagTrigger = regexp.MustCompile(`<[A-Za-z/!?]`)

// lineBreakTags end a visual line when stripped.
var lineBreakTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "table": true,
}

// StripTags removes HTML tags, comments and doctypes, keeping text as
// written (entities stay encoded). Script and style contents are dropped.
// Angle-bracketed addresses such as <a@b.com> are kept.
func StripTags(s string) string {
	if !tagTrigger.MatchString(s) {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return b.String()

		case html.TextToken:
			if skip == 0 {
				b.Write(z.Raw())
			}

		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			raw := string(z.Raw())
			name, _ := z.TagName()
			tag := string(name)

			if strings.Contains(tag, "@") {
				if skip == 0 {
					b.WriteString(raw)
				}
				continue
			}

			switch {
			case tag == "script" || tag == "style":
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			case lineBreakTags[tag] && skip == 0:
				if tag == "br" || tt == html.EndTagToken {
					b.WriteByte('\n')
				}
			}
		}
	}
}

// HasMarkup reports whether s contains anything that looks like a tag.
func HasMarkup(s string) bool {
	return tagTrigger.MatchString(s)
}

// HTMLToText renders an HTML document as readable plain text, keeping
// link targets. It falls back to StripTags when rendering fails.
func HTMLToText(doc string) string {
	text, err := html2text.FromString(doc)
	if err != nil {
		return strings.TrimSpace(DecodeEntities(StripTags(doc)))
	}
	return text
}
