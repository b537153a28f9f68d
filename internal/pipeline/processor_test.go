package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailreply/internal/ai"
	"github.com/nhle/mailreply/internal/logging"
	"github.com/nhle/mailreply/internal/model"
	"github.com/nhle/mailreply/internal/ratelimit"
	"github.com/nhle/mailreply/tests/testutil"
)

const self = "bot@example.com"

type fakeMail struct {
	order    []uint32
	messages map[uint32]*model.InboundMessage
	bodies   map[string]string

	listErr      error
	fetchErr     map[uint32]error
	markFailures int
	deleteErr    error

	markCalls int
	marked    []string
	deleted   []string
}

func newFakeMail(msgs ...*model.InboundMessage) *fakeMail {
	m := &fakeMail{
		messages: map[uint32]*model.InboundMessage{},
		bodies:   map[string]string{},
		fetchErr: map[uint32]error{},
	}
	for _, msg := range msgs {
		m.order = append(m.order, msg.UID)
		m.messages[msg.UID] = msg
	}
	return m
}

func (m *fakeMail) ListUnseen(context.Context) ([]uint32, error) {
	return m.order, m.listErr
}

func (m *fakeMail) Fetch(_ context.Context, uid uint32) (*model.InboundMessage, error) {
	if err := m.fetchErr[uid]; err != nil {
		return nil, err
	}
	return m.messages[uid], nil
}

func (m *fakeMail) MarkRead(_ context.Context, ref model.MessageRef) error {
	m.markCalls++
	if m.markFailures > 0 {
		m.markFailures--
		return errors.New("imap: connection reset")
	}
	m.marked = append(m.marked, ref.String())
	return nil
}

func (m *fakeMail) Delete(_ context.Context, ref model.MessageRef) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, ref.String())
	return nil
}

func (m *fakeMail) LookupBody(_ context.Context, id string) (string, bool, error) {
	body, ok := m.bodies[id]
	return body, ok, nil
}

type fakeTransport struct {
	sent []model.OutboundMessage
	fail func(model.OutboundMessage) error
}

func (t *fakeTransport) Send(_ context.Context, msg model.OutboundMessage) error {
	if t.fail != nil {
		if err := t.fail(msg); err != nil {
			return err
		}
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) withSubject(subject string) []model.OutboundMessage {
	var out []model.OutboundMessage
	for _, m := range t.sent {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

type fakeResponder struct {
	reply    string
	err      error
	panicMsg string
	requests []ai.Request
}

func (r *fakeResponder) Complete(_ context.Context, req ai.Request) (string, error) {
	r.requests = append(r.requests, req)
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	return r.reply, r.err
}

type failingLimiter struct{}

func (failingLimiter) RecordIfAllowed(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("database is locked")
}

type harness struct {
	proc      *Processor
	mail      *fakeMail
	transport *fakeTransport
	responder *fakeResponder
	limiter   *ratelimit.Limiter
	sleeps    []time.Duration
}

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Self:                self,
		FromName:            "Ai.Z",
		MaxRecipients:       10,
		BlockedSenders:      []string{"spam@example.com"},
		AllowedDomains:      []string{"example.com"},
		IncludeThreadEmails: true,
		SystemPrompt:        "Sen yardımcı bir asistansın.",
		Pause:               2 * time.Second,
		MarkReadRetryDelay:  time.Second,
	}
}

func newHarness(t *testing.T, cfg Config, msgs ...*model.InboundMessage) *harness {
	t.Helper()

	limiter, _ := testutil.NewTestLimiter(t, 10)
	h := &harness{
		mail:      newFakeMail(msgs...),
		transport: &fakeTransport{},
		responder: &fakeResponder{reply: "**Merhaba** Alice, teşekkürler."},
		limiter:   limiter,
	}
	h.proc = New(cfg, h.mail, h.transport, h.responder, h.limiter, logging.Discard(),
		WithClock(func() time.Time { return fixedNow }),
		WithSleep(func(_ context.Context, d time.Duration) { h.sleeps = append(h.sleeps, d) }),
	)
	return h
}

func inbound(uid uint32, from string) *model.InboundMessage {
	return &model.InboundMessage{
		UID:       uid,
		MessageID: fmt.Sprintf("msg-%d@example.com", uid),
		Subject:   "Hello",
		From:      from,
		FromName:  "Alice",
		To:        []string{self},
		Cc:        []string{"bob@example.com"},
		RawBody:   "Kısa özet ver\n\nMerhaba, toplantı notlarını paylaşır mısın?",
	}
}

func TestProcess_AllowedSenderIsReplied(t *testing.T) {
	msg := inbound(1, "alice@example.com")
	h := newHarness(t, testConfig(), msg)

	out := h.proc.Process(context.Background(), msg)

	require.Equal(t, Replied, out.Kind)
	require.Len(t, h.transport.sent, 1)

	reply := h.transport.sent[0]
	assert.Equal(t, []string{"alice@example.com"}, reply.To)
	assert.Equal(t, []string{"bob@example.com"}, reply.Cc)
	assert.Equal(t, self, reply.FromAddress)
	assert.Equal(t, self, reply.ReplyTo)
	assert.Equal(t, "Re: Hello", reply.Subject)
	assert.Equal(t, "msg-1@example.com", reply.InReplyTo)
	assert.Equal(t, []string{"msg-1@example.com"}, reply.References)
	assert.Contains(t, reply.HTMLBody, "<strong>Merhaba</strong>")

	assert.Equal(t, []string{"msg-1@example.com"}, h.mail.marked)
	assert.Equal(t, []string{"msg-1@example.com"}, h.mail.deleted)
	require.Len(t, h.responder.requests, 1)

	usage, err := h.limiter.Usage(context.Background())
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 1, usage[0].Count)
}

func TestProcess_BlockedSenderIsDroppedSilently(t *testing.T) {
	msg := inbound(1, "spam@example.com")
	h := newHarness(t, testConfig(), msg)

	out := h.proc.Process(context.Background(), msg)

	assert.Equal(t, Dropped, out.Kind)
	assert.Equal(t, ReasonBlockedSender, out.Reason)
	assert.Equal(t, []string{"msg-1@example.com"}, h.mail.marked)
	assert.Equal(t, []string{"msg-1@example.com"}, h.mail.deleted)
	assert.Empty(t, h.responder.requests)
	assert.Empty(t, h.transport.sent)
}

func TestProcess_RateLimitedSenderIsNotified(t *testing.T) {
	ctx := context.Background()
	msg := inbound(1, "alice@example.com")
	h := newHarness(t, testConfig(), msg)

	for range 10 {
		d, err := h.limiter.RecordIfAllowed(ctx, "alice@example.com")
		require.NoError(t, err)
		require.True(t, d.Accepted)
	}

	out := h.proc.Process(ctx, msg)

	assert.Equal(t, RateLimited, out.Kind)
	assert.Empty(t, h.responder.requests)
	notices := h.transport.withSubject(SubjectLimitReached)
	require.Len(t, notices, 1)
	assert.Equal(t, []string{"alice@example.com"}, notices[0].To)
	assert.Contains(t, notices[0].TextBody, "24 saat")
	assert.Len(t, h.transport.sent, 1)
	assert.Empty(t, h.mail.deleted)
}

func TestProcess_Gates(t *testing.T) {
	tests := []struct {
		name   string
		cfg    func(*Config)
		msg    func(*model.InboundMessage)
		reason string
	}{
		{
			name:   "too many recipients",
			cfg:    func(c *Config) { c.MaxRecipients = 2 },
			msg:    func(m *model.InboundMessage) { m.Cc = append(m.Cc, "carol@example.com") },
			reason: ReasonTooManyRecipients,
		},
		{
			name:   "blocked recipient",
			cfg:    func(c *Config) { c.BlockedRecipients = []string{"BOB@example.com"} },
			reason: ReasonBlockedRecipient,
		},
		{
			name: "cc only",
			cfg:  func(c *Config) { c.IgnoreCcEmails = true },
			msg: func(m *model.InboundMessage) {
				m.To = []string{"bob@example.com"}
				m.Cc = []string{self}
			},
			reason: ReasonCcOnly,
		},
		{
			name:   "sender not in allowlist",
			cfg:    func(c *Config) { c.ReplyAllowedSenders = []string{"carol@example.com"} },
			reason: ReasonSenderNotAllowed,
		},
		{
			name:   "domain not allowed",
			msg:    func(m *model.InboundMessage) { m.From = "alice@other.org" },
			reason: ReasonDomainNotAllowed,
		},
		{
			name:   "empty domain list",
			cfg:    func(c *Config) { c.AllowedDomains = nil },
			reason: ReasonDomainNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			msg := inbound(1, "alice@example.com")
			if tt.msg != nil {
				tt.msg(msg)
			}
			h := newHarness(t, cfg, msg)

			out := h.proc.Process(context.Background(), msg)

			assert.Equal(t, Dropped, out.Kind)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Empty(t, h.responder.requests)
			assert.Empty(t, h.transport.sent)
			assert.Equal(t, []string{msg.MessageID}, h.mail.deleted)
		})
	}
}

func TestProcess_GatesPassWhenCcSuppressionSeesSelfInTo(t *testing.T) {
	cfg := testConfig()
	cfg.IgnoreCcEmails = true
	cfg.ReplyAllowedSenders = []string{"Alice@Example.com"}
	msg := inbound(1, "alice@example.com")
	msg.Cc = append(msg.Cc, self)

	assert.Empty(t, checkGates(cfg, msg))
}

func TestProcess_SendFailureNotifiesSender(t *testing.T) {
	msg := inbound(1, "alice@example.com")
	h := newHarness(t, testConfig(), msg)
	h.transport.fail = func(m model.OutboundMessage) error {
		if m.Subject == "Re: Hello" {
			return errors.New("smtp: 554 rejected")
		}
		return nil
	}

	out := h.proc.Process(context.Background(), msg)

	assert.Equal(t, SendFailed, out.Kind)
	assert.EqualError(t, out.Err, "smtp: 554 rejected")
	assert.Len(t, h.transport.withSubject(SubjectSendFailed), 1)
	assert.Empty(t, h.mail.deleted)
}

func TestProcess_ProviderFailureNotifiesSender(t *testing.T) {
	msg := inbound(1, "alice@example.com")
	h := newHarness(t, testConfig(), msg)
	h.responder.err = errors.New("upstream timeout")

	out := h.proc.Process(context.Background(), msg)

	assert.Equal(t, Failed, out.Kind)
	notices := h.transport.withSubject(SubjectProcessingError)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].TextBody, "upstream timeout")
	assert.Contains(t, notices[0].HTMLBody, "<br>")
	assert.Empty(t, h.mail.deleted)
}

func TestProcess_LimiterErrorIsFailure(t *testing.T) {
	msg := inbound(1, "alice@example.com")
	h := newHarness(t, testConfig(), msg)
	h.proc.limiter = failingLimiter{}

	out := h.proc.Process(context.Background(), msg)

	assert.Equal(t, Failed, out.Kind)
	assert.Empty(t, h.responder.requests)
	assert.Len(t, h.transport.withSubject(SubjectProcessingError), 1)
}

func TestProcess_PanicIsRecovered(t *testing.T) {
	msg := inbound(1, "alice@example.com")
	h := newHarness(t, testConfig(), msg)
	h.responder.panicMsg = "nil map"

	var out Outcome
	require.NotPanics(t, func() {
		out = h.proc.Process(context.Background(), msg)
	})

	assert.Equal(t, Failed, out.Kind)
	assert.ErrorContains(t, out.Err, "nil map")
	assert.Len(t, h.transport.withSubject(SubjectProcessingError), 1)
}

func TestProcess_MarkReadIsRetriedOnce(t *testing.T) {
	msg := inbound(1, "alice@example.com")
	h := newHarness(t, testConfig(), msg)
	h.mail.markFailures = 1

	out := h.proc.Process(context.Background(), msg)

	assert.Equal(t, Replied, out.Kind)
	assert.Equal(t, 2, h.mail.markCalls)
	assert.Equal(t, []time.Duration{time.Second}, h.sleeps)
}

func TestProcess_MarkReadFailureDoesNotStopProcessing(t *testing.T) {
	msg := inbound(1, "alice@example.com")
	h := newHarness(t, testConfig(), msg)
	h.mail.markFailures = 2

	out := h.proc.Process(context.Background(), msg)

	assert.Equal(t, Replied, out.Kind)
	assert.Equal(t, 2, h.mail.markCalls)
	assert.Empty(t, h.mail.marked)
}

func TestProcess_MessageWithoutMessageIDIsAddressedByUID(t *testing.T) {
	msg := inbound(7, "alice@example.com")
	msg.MessageID = ""
	h := newHarness(t, testConfig(), msg)

	out := h.proc.Process(context.Background(), msg)

	assert.Equal(t, Replied, out.Kind)
	assert.Equal(t, []string{"uid 7"}, h.mail.marked)
	assert.Equal(t, []string{"uid 7"}, h.mail.deleted)
}

func TestProcess_HTMLOnlyBodyIsRenderedAsText(t *testing.T) {
	msg := inbound(1, "alice@example.com")
	msg.RawBody = "--b\r\nContent-Type: text/html\r\n\r\n<p>ignored</p>\r\n--b--"
	msg.HTMLBody = `<p>Raporu <a href="https://example.com/rapor">buradan</a> inceleyin.</p>`
	msg.HTMLOnly = true
	h := newHarness(t, testConfig(), msg)

	h.proc.Process(context.Background(), msg)

	require.Len(t, h.responder.requests, 1)
	assert.Contains(t, msg.CleanBody, "Raporu")
	assert.Contains(t, msg.CleanBody, "https://example.com/rapor")
	assert.NotContains(t, msg.CleanBody, "<p>")
	assert.NotContains(t, msg.CleanBody, "ignored")
}

func TestProcess_PromptCarriesThreadAndCustomPrompt(t *testing.T) {
	msg := inbound(1, "alice@example.com")
	msg.References = "<root@example.com> <missing@example.com>"
	h := newHarness(t, testConfig(), msg)
	h.mail.bodies["root@example.com"] = "İlk mesaj gövdesi"

	h.proc.Process(context.Background(), msg)

	require.Len(t, h.responder.requests, 1)
	var user string
	for _, seg := range h.responder.requests[0].Segments {
		if seg.Role == ai.RoleUser {
			user = seg.Content
		}
	}
	assert.Contains(t, user, "Özel Yönerge: Kısa özet ver")
	assert.Contains(t, user, "--- E-posta 1 ---\nİlk mesaj gövdesi")
	assert.NotContains(t, user, "E-posta 2")

	reply := h.transport.sent[0]
	assert.Equal(t, []string{"root@example.com", "missing@example.com", "msg-1@example.com"}, reply.References)
}

func TestProcess_SenderDirectiveRoutesReply(t *testing.T) {
	cfg := testConfig()
	cfg.SenderDirectives = true
	msg := inbound(1, "alice@example.com")
	msg.RawBody = "Cevabı sadece dave@example.com'a gönder\n\nDetaylar ekte."
	h := newHarness(t, cfg, msg)

	out := h.proc.Process(context.Background(), msg)

	require.Equal(t, Replied, out.Kind)
	assert.Equal(t, []string{"dave@example.com"}, h.transport.sent[0].To)
	assert.Empty(t, h.transport.sent[0].Cc)
}

func TestProcess_RecordsOutcome(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestStore(t)
	msg := inbound(1, "spam@example.com")
	h := newHarness(t, testConfig(), msg)
	WithOutcomeRecorder(db)(h.proc)

	h.proc.Process(ctx, msg)

	records, err := db.RecentOutcomes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "dropped", records[0].Outcome)
	assert.Equal(t, ReasonBlockedSender, records[0].Detail)
	assert.Equal(t, "spam@example.com", records[0].Sender)
	assert.True(t, fixedNow.Equal(records[0].ProcessedAt))
}

func TestReplyFormatting(t *testing.T) {
	msg := inbound(1, "alice@example.com")
	msg.CleanBody = "Merhaba <ekip>"
	h := newHarness(t, testConfig(), msg)

	reply := h.proc.buildReply(msg, "Tamam, **hallederim**.", model.RoutingDecision{To: []string{msg.From}})

	assert.Contains(t, reply.HTMLBody, "<strong>Sent:</strong> 2025-03-14 09:30:00")
	assert.Contains(t, reply.HTMLBody, "Merhaba &lt;ekip&gt;")
	assert.Contains(t, reply.HTMLBody, "white-space: pre-wrap")
	assert.True(t, strings.HasPrefix(reply.TextBody, "Tamam, **hallederim**.\n\n-----Original Message-----\n"))
	assert.Contains(t, reply.TextBody, "From: Alice <alice@example.com>\n")
	assert.Contains(t, reply.TextBody, "Cc: bob@example.com\n")

	h.proc.cfg.IncludeThreadEmails = false
	reply = h.proc.buildReply(msg, "Tamam.", model.RoutingDecision{To: []string{msg.From}})
	assert.NotContains(t, reply.HTMLBody, "Sent:")
	assert.Equal(t, "Tamam.\n\n", reply.TextBody)
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Hello", ReplySubject("Hello"))
	assert.Equal(t, "RE: Hello", ReplySubject("RE: Hello"))
	assert.Equal(t, "Re: Hello", ReplySubject("  Re: Hello "))
}

func TestRunBatch(t *testing.T) {
	ok := inbound(1, "alice@example.com")
	blocked := inbound(2, "spam@example.com")
	broken := inbound(3, "carol@example.com")
	last := inbound(4, "dave@example.com")
	h := newHarness(t, testConfig(), ok, blocked, broken, last)
	h.mail.fetchErr[3] = errors.New("imap: bad response")

	summary, err := h.proc.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total())
	assert.Equal(t, 2, summary.Count(Replied))
	assert.Equal(t, 1, summary.Count(Dropped))
	assert.Equal(t, 1, summary.Count(Failed))
	assert.Equal(t, uint32(3), summary.Results[2].UID)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, h.sleeps)

	// Fetch failures are not reported to anyone.
	assert.Empty(t, h.transport.withSubject(SubjectProcessingError))
}

func TestRunBatch_ListFailure(t *testing.T) {
	h := newHarness(t, testConfig())
	h.mail.listErr = errors.New("imap: not authenticated")

	_, err := h.proc.RunBatch(context.Background())
	assert.ErrorContains(t, err, "listing unseen messages")
}

func TestRunBatch_Empty(t *testing.T) {
	h := newHarness(t, testConfig())

	summary, err := h.proc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Total())
	assert.Empty(t, h.sleeps)
}

func TestConfigFrom(t *testing.T) {
	app := &model.AppConfig{}
	app.SMTP.Username = self
	app.SMTP.FromName = "Ai.Z"
	app.Reply.PauseMillis = 1500

	cfg := ConfigFrom(app)
	assert.Equal(t, self, cfg.Self)
	assert.Equal(t, "Ai.Z", cfg.FromName)
	assert.Equal(t, 1500*time.Millisecond, cfg.Pause)
	assert.Equal(t, time.Second, cfg.MarkReadRetryDelay)
}
