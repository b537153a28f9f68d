package email

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailreply/internal/crossref"
	"github.com/nhle/mailreply/internal/model"
)

// ParseMessage parses a raw RFC 5322 message into an InboundMessage.
//
// RawBody is the body as stored: the undecoded text after the header
// block for multipart messages, so the normalizer sees the MIME
// structure, and the transfer-decoded text for single-part messages.
func ParseMessage(uid uint32, raw []byte) (*model.InboundMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && mr == nil {
		return nil, fmt.Errorf("parsing message UID %d: %w", uid, err)
	}
	defer mr.Close()

	h := mr.Header
	msg := &model.InboundMessage{UID: uid}

	msg.MessageID, _ = h.MessageID()
	if msg.MessageID == "" {
		msg.MessageID = crossref.TrimMessageID(h.Get("Message-Id"))
	}

	if msg.Subject, err = h.Subject(); err != nil {
		msg.Subject = h.Get("Subject")
	}

	from := addressList(h, "From")
	if len(from) > 0 {
		msg.From = from[0].Address
		msg.FromName = from[0].Name
	} else {
		msg.From = strings.TrimSpace(h.Get("From"))
	}
	if msg.FromName == "" {
		msg.FromName = msg.From
	}

	msg.To = addresses(addressList(h, "To"))
	msg.Cc = addresses(addressList(h, "Cc"))
	msg.ReplyTo = addresses(addressList(h, "Reply-To"))

	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		msg.InReplyTo = ids[0]
	} else if ids := crossref.ExtractMessageIDs(h.Get("In-Reply-To")); len(ids) > 0 {
		msg.InReplyTo = ids[0]
	}

	if ids, err := h.MsgIDList("References"); err == nil && len(ids) > 0 {
		msg.References = strings.Join(ids, " ")
	} else {
		msg.References = strings.Join(crossref.ExtractMessageIDs(h.Get("References")), " ")
	}

	mediaType, _, _ := h.ContentType()
	multipart := strings.HasPrefix(mediaType, "multipart/")

	text, html := readParts(mr)
	if multipart {
		msg.RawBody = bodyAfterHeader(raw)
	} else if text != "" {
		msg.RawBody = text
	} else {
		msg.RawBody = html
	}
	msg.HTMLBody = html
	msg.HTMLOnly = text == "" && strings.TrimSpace(html) != ""

	return msg, nil
}

// readParts returns the first text/plain and text/html inline bodies,
// decoded from their transfer encoding and charset.
func readParts(mr *mail.Reader) (text, html string) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep what was read before the broken part.
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case contentType == "" || strings.HasPrefix(contentType, "text/plain"):
			if text == "" {
				text = string(body)
			}
		case strings.HasPrefix(contentType, "text/html"):
			if html == "" {
				html = string(body)
			}
		}
	}

	return text, html
}

func addressList(h mail.Header, key string) []*mail.Address {
	list, err := h.AddressList(key)
	if err == nil {
		return list
	}

	// Fall back to whatever parses on its own.
	var out []*mail.Address
	for _, field := range strings.Split(h.Get(key), ",") {
		if addr, err := mail.ParseAddress(strings.TrimSpace(field)); err == nil {
			out = append(out, addr)
		}
	}
	return out
}

func addresses(list []*mail.Address) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

// bodyAfterHeader returns the text following the first blank line.
func bodyAfterHeader(raw []byte) string {
	for _, sep := range [][]byte{[]byte("\r\n\r\n"), []byte("\n\n")} {
		if i := bytes.Index(raw, sep); i >= 0 {
			return string(raw[i+len(sep):])
		}
	}
	return ""
}
