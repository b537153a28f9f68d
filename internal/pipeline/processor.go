package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"

	"github.com/nhle/mailreply/internal/ai"
	"github.com/nhle/mailreply/internal/directive"
	"github.com/nhle/mailreply/internal/model"
	"github.com/nhle/mailreply/internal/normalize"
	"github.com/nhle/mailreply/internal/route"
	"github.com/nhle/mailreply/internal/store"
)

// ErrNoRecipients is returned when routing leaves no valid To address.
var ErrNoRecipients = errors.New("no valid reply recipients")

// RunBatch processes every currently unseen message in order. Only a
// failure to list the mailbox is returned; per-message failures end up
// in the summary.
func (p *Processor) RunBatch(ctx context.Context) (Summary, error) {
	var summary Summary

	uids, err := p.mail.ListUnseen(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing unseen messages: %w", err)
	}
	if len(uids) == 0 {
		p.logger.Info("no unseen messages")
		return summary, nil
	}

	p.logger.Info("processing unseen messages", "count", len(uids))

	for i, uid := range uids {
		if i > 0 {
			p.sleep(ctx, p.cfg.Pause)
		}

		msg, err := p.mail.Fetch(ctx, uid)
		if err != nil {
			p.logger.Error("failed to fetch message", "uid", uid, "err", err)
			summary.Results = append(summary.Results, Result{
				UID:     uid,
				Outcome: failed(fmt.Errorf("fetching message: %w", err)),
			})
			continue
		}

		out := p.Process(ctx, msg)
		summary.Results = append(summary.Results, Result{
			UID:       uid,
			MessageID: msg.MessageID,
			From:      msg.From,
			Subject:   msg.Subject,
			Outcome:   out,
		})
	}

	p.logger.Info("batch finished",
		"total", summary.Total(),
		"replied", summary.Count(Replied),
		"dropped", summary.Count(Dropped),
		"rate_limited", summary.Count(RateLimited),
		"send_failed", summary.Count(SendFailed),
		"failed", summary.Count(Failed),
	)

	return summary, nil
}

// Process runs one message through the gates, the rate limiter, the AI
// provider and the transport. It never panics and never returns an
// error: every ending is an Outcome.
func (p *Processor) Process(ctx context.Context, msg *model.InboundMessage) (out Outcome) {
	logger := p.logger.With("from", msg.From, "subject", msg.Subject)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing message", "panic", r, "stack", string(debug.Stack()))
			err := fmt.Errorf("internal error: %v", r)
			p.notify(ctx, msg.From, SubjectProcessingError, processingErrorBody(err.Error()))
			out = failed(err)
		}
		p.record(ctx, msg, out)
	}()

	p.markRead(ctx, msg)

	if reason := checkGates(p.cfg, msg); reason != "" {
		logger.Info("message dropped", "reason", reason)
		p.delete(ctx, msg)
		return dropped(reason)
	}

	decision, err := p.limiter.RecordIfAllowed(ctx, msg.From)
	if err != nil {
		return p.fail(ctx, msg, err)
	}
	if !decision.Accepted {
		logger.Warn("daily request limit reached", "used", decision.Used, "limit", decision.Limit)
		p.notify(ctx, msg.From, SubjectLimitReached, limitReachedBody)
		return rateLimited(decision.Used, decision.Limit)
	}

	if err := p.prepare(ctx, msg); err != nil {
		return p.fail(ctx, msg, err)
	}

	req := ai.NewReplyRequest(p.cfg.SystemPrompt, msg, p.cfg.AllowAIRecipients)
	text, err := p.responder.Complete(ctx, req)
	if err != nil {
		return p.fail(ctx, msg, fmt.Errorf("generating reply: %w", err))
	}

	reply := directive.ParseReply(text)
	routing := p.router.Route(msg, reply, p.cfg.Self, route.Policy{AllowAIRecipients: p.cfg.AllowAIRecipients})
	if len(routing.To) == 0 {
		return p.fail(ctx, msg, ErrNoRecipients)
	}

	if err := p.transport.Send(ctx, p.buildReply(msg, reply.Content, routing)); err != nil {
		logger.Error("failed to send reply", "err", err)
		p.notify(ctx, msg.From, SubjectSendFailed, sendFailedBody)
		return sendFailed(err)
	}

	logger.Info("reply sent", "to", strings.Join(routing.To, ", "), "cc", strings.Join(routing.Cc, ", "))
	p.delete(ctx, msg)
	return replied()
}

// prepare normalizes the body, extracts the sender's instructions and
// resolves the thread.
func (p *Processor) prepare(ctx context.Context, msg *model.InboundMessage) error {
	body := msg.RawBody
	if msg.HTMLOnly || strings.TrimSpace(body) == "" {
		body = normalize.HTMLToText(msg.HTMLBody)
	}
	msg.CleanBody = normalize.Normalize(body)

	directive.ExtractInbound(msg.CleanBody, p.cfg.SenderDirectives).Apply(msg)

	if msg.References == "" {
		return nil
	}

	bodies, err := p.assembler.AssembleReferences(ctx, msg.References)
	if err != nil {
		return fmt.Errorf("assembling thread: %w", err)
	}
	msg.ThreadBodies = bodies
	return nil
}

// fail notifies the sender of an unexpected failure.
func (p *Processor) fail(ctx context.Context, msg *model.InboundMessage, err error) Outcome {
	p.logger.Error("failed to process message", "from", msg.From, "subject", msg.Subject, "err", err)
	p.notify(ctx, msg.From, SubjectProcessingError, processingErrorBody(err.Error()))
	return failed(err)
}

// markRead marks msg read, retrying once after a short delay.
func (p *Processor) markRead(ctx context.Context, msg *model.InboundMessage) {
	ref := msg.Ref()
	err := p.mail.MarkRead(ctx, ref)
	if err == nil {
		return
	}

	p.logger.Warn("failed to mark message read, retrying", "message", ref, "err", err)
	p.sleep(ctx, p.cfg.MarkReadRetryDelay)

	if err := p.mail.MarkRead(ctx, ref); err != nil {
		p.logger.Error("failed to mark message read", "message", ref, "err", err)
	}
}

func (p *Processor) delete(ctx context.Context, msg *model.InboundMessage) {
	if err := p.mail.Delete(ctx, msg.Ref()); err != nil {
		p.logger.Error("failed to delete message", "message", msg.Ref(), "err", err)
	}
}

func (p *Processor) record(ctx context.Context, msg *model.InboundMessage, out Outcome) {
	if p.outcomes == nil {
		return
	}

	rec := store.OutcomeRecord{
		ID:          uuid.NewString(),
		MessageID:   msg.MessageID,
		Sender:      msg.From,
		Subject:     msg.Subject,
		Outcome:     out.Kind.String(),
		Detail:      out.Detail(),
		ProcessedAt: p.now(),
	}
	if err := p.outcomes.RecordOutcome(ctx, rec); err != nil {
		p.logger.Warn("failed to record outcome", "message_id", msg.MessageID, "err", err)
	}
}
