package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/mailreply/internal/crossref"
	"github.com/nhle/mailreply/internal/model"
	"github.com/nhle/mailreply/internal/source"
)

// ErrMessageNotFound is returned when no message in INBOX carries the
// requested Message-ID.
var ErrMessageNotFound = errors.New("message not found")

const inbox = "INBOX"

// Mailbox is the IMAP mail store. Every operation opens its own
// connection, so sequence numbers never outlive the session that
// produced them; messages are addressed by UID within one call and by
// Message-ID across calls, or by UID and UIDVALIDITY when they carry no
// Message-ID.
type Mailbox struct {
	addr       string
	username   string
	password   string
	encryption source.Encryption
}

// NewMailbox creates a mailbox for the given server settings.
func NewMailbox(cfg model.MailServerConfig) (*Mailbox, error) {
	enc, err := source.ParseEncryption(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("imap: %w", err)
	}
	return &Mailbox{
		addr:       cfg.Addr(),
		username:   cfg.Username,
		password:   cfg.Password,
		encryption: enc,
	}, nil
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout on the returned client.
func (m *Mailbox) Connect(ctx context.Context) (*imapclient.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var client *imapclient.Client
	var err error

	switch m.encryption {
	case source.EncryptionImplicitTLS:
		client, err = imapclient.DialTLS(m.addr, nil)
	case source.EncryptionStartTLS:
		client, err = imapclient.DialStartTLS(m.addr, nil)
	default:
		client, err = imapclient.DialInsecure(m.addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", m.addr, err)
	}

	if err := client.Login(m.username, m.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &source.AuthError{
			Service: source.ServiceIMAP,
			Message: fmt.Sprintf("authentication failed for %s: %v", m.username, err),
		}
	}

	return client, nil
}

// withInbox connects, selects INBOX and runs fn.
func (m *Mailbox) withInbox(ctx context.Context, fn func(*imapclient.Client, *imap.SelectData) error) error {
	client, err := m.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	data, err := client.Select(inbox, nil).Wait()
	if err != nil {
		return fmt.Errorf("selecting %s: %w", inbox, err)
	}

	return fn(client, data)
}

// ListUnseen returns the UIDs of all messages without the \Seen flag.
func (m *Mailbox) ListUnseen(ctx context.Context) ([]uint32, error) {
	var uids []uint32
	err := m.withInbox(ctx, func(c *imapclient.Client, _ *imap.SelectData) error {
		criteria := &imap.SearchCriteria{
			NotFlag: []imap.Flag{imap.FlagSeen},
		}
		data, err := c.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return fmt.Errorf("searching unseen messages: %w", err)
		}
		for _, uid := range data.AllUIDs() {
			uids = append(uids, uint32(uid))
		}
		return nil
	})
	return uids, err
}

// Fetch downloads the full message for uid without setting \Seen and
// parses it.
func (m *Mailbox) Fetch(ctx context.Context, uid uint32) (*model.InboundMessage, error) {
	var msg *model.InboundMessage
	err := m.withInbox(ctx, func(c *imapclient.Client, sel *imap.SelectData) error {
		raw, err := fetchRaw(c, imap.UID(uid))
		if err != nil {
			return err
		}
		if msg, err = ParseMessage(uid, raw); err != nil {
			return err
		}
		msg.UIDValidity = sel.UIDValidity
		return nil
	})
	return msg, err
}

// MarkRead sets \Seen on the referenced message.
func (m *Mailbox) MarkRead(ctx context.Context, ref model.MessageRef) error {
	return m.withInbox(ctx, func(c *imapclient.Client, sel *imap.SelectData) error {
		uid, ok, err := resolve(c, sel, ref)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("marking %s read: %w", ref, ErrMessageNotFound)
		}
		return addFlag(c, uid, imap.FlagSeen)
	})
}

// Delete flags the referenced message as deleted and expunges the
// mailbox. A message that is already gone is not an error.
func (m *Mailbox) Delete(ctx context.Context, ref model.MessageRef) error {
	return m.withInbox(ctx, func(c *imapclient.Client, sel *imap.SelectData) error {
		uid, ok, err := resolve(c, sel, ref)
		if err != nil || !ok {
			return err
		}
		if err := addFlag(c, uid, imap.FlagDeleted); err != nil {
			return err
		}
		if err := c.Expunge().Close(); err != nil {
			return fmt.Errorf("expunging %s: %w", inbox, err)
		}
		return nil
	})
}

// LookupBody returns the raw body of the message with the given
// Message-ID. The second result is false when no message matches.
func (m *Mailbox) LookupBody(ctx context.Context, messageID string) (string, bool, error) {
	var body string
	var found bool
	err := m.withInbox(ctx, func(c *imapclient.Client, sel *imap.SelectData) error {
		uid, ok, err := findByMessageID(c, sel, messageID)
		if err != nil || !ok {
			return err
		}
		raw, err := fetchRaw(c, uid)
		if err != nil {
			return err
		}
		msg, err := ParseMessage(uint32(uid), raw)
		if err != nil {
			return err
		}
		body, found = msg.RawBody, true
		return nil
	})
	return body, found, err
}

// resolve finds the UID of ref in the selected mailbox. Messages without
// a Message-ID fall back to their UID, provided UIDVALIDITY is unchanged.
func resolve(c *imapclient.Client, sel *imap.SelectData, ref model.MessageRef) (imap.UID, bool, error) {
	if crossref.TrimMessageID(ref.MessageID) != "" {
		return findByMessageID(c, sel, ref.MessageID)
	}
	if ref.UID == 0 || sel.NumMessages == 0 || ref.UIDValidity != sel.UIDValidity {
		return 0, false, nil
	}

	data, err := c.UIDSearch(&imap.SearchCriteria{
		UID: []imap.UIDSet{imap.UIDSetNum(imap.UID(ref.UID))},
	}, nil).Wait()
	if err != nil {
		return 0, false, fmt.Errorf("searching UID %d: %w", ref.UID, err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return 0, false, nil
	}
	return uids[0], true, nil
}

// findByMessageID scans the envelopes of every message in the selected
// mailbox for messageID.
func findByMessageID(c *imapclient.Client, sel *imap.SelectData, messageID string) (imap.UID, bool, error) {
	want := crossref.TrimMessageID(messageID)
	if want == "" || sel.NumMessages == 0 {
		return 0, false, nil
	}

	var all imap.SeqSet
	all.AddRange(1, 0)

	fetchCmd := c.Fetch(all, &imap.FetchOptions{
		Envelope: true,
		UID:      true,
	})
	defer fetchCmd.Close()

	var found imap.UID
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil || buf.Envelope == nil {
			continue
		}
		if found == 0 && crossref.TrimMessageID(buf.Envelope.MessageID) == want {
			found = buf.UID
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return 0, false, fmt.Errorf("scanning envelopes: %w", err)
	}

	return found, found != 0, nil
}

func fetchRaw(c *imapclient.Client, uid imap.UID) ([]byte, error) {
	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}

	fetchCmd := c.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d: %w", uid, ErrMessageNotFound)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message UID %d: %w", uid, err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body", uid)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("closing fetch: %w", err)
	}

	return raw, nil
}

func addFlag(c *imapclient.Client, uid imap.UID, flag imap.Flag) error {
	storeCmd := c.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{flag},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("setting %s on UID %d: %w", flag, uid, err)
	}
	return nil
}
