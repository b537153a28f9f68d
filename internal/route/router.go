// Package route decides who receives a generated reply.
package route

import (
	"net/mail"
	"strings"

	"github.com/samber/lo"

	"github.com/nhle/mailreply/internal/model"
)

// Policy holds the routing switches taken from configuration.
type Policy struct {
	// AllowAIRecipients lets the AI reply add or override recipients.
	AllowAIRecipients bool
}

// Request is everything a routing step may look at.
type Request struct {
	Original *model.InboundMessage
	Reply    model.AiReply
	Self     string
	Policy   Policy
}

// State is the recipient set as it passes through the steps.
type State struct {
	To []string
	Cc []string

	// Overridden is set once a step has fixed the recipients on the
	// AI reply's instruction.
	Overridden bool
}

// Step is one stage of the routing decision.
type Step struct {
	Name  string
	Apply func(req Request, st *State)
}

// Step names of the default pipeline.
const (
	StepAIOverride       = "ai-override"
	StepDefault          = "default"
	StepSenderDirectives = "sender-directives"
	StepCleanup          = "cleanup"
)

// DefaultSteps returns the routing steps in evaluation order.
func DefaultSteps() []Step {
	return []Step{
		{Name: StepAIOverride, Apply: applyAIOverride},
		{Name: StepDefault, Apply: applyDefault},
		{Name: StepSenderDirectives, Apply: applySenderDirectives},
		{Name: StepCleanup, Apply: applyCleanup},
	}
}

// InsertAfter returns a copy of steps with s placed right after the step
// called name, or appended when there is no such step.
func InsertAfter(steps []Step, name string, s Step) []Step {
	out := make([]Step, 0, len(steps)+1)
	inserted := false
	for _, st := range steps {
		out = append(out, st)
		if st.Name == name && !inserted {
			out = append(out, s)
			inserted = true
		}
	}
	if !inserted {
		out = append(out, s)
	}
	return out
}

// Router runs the routing steps in order.
type Router struct {
	steps []Step
}

// NewRouter creates a Router. Without steps it uses DefaultSteps.
func NewRouter(steps ...Step) *Router {
	if len(steps) == 0 {
		steps = DefaultSteps()
	}
	return &Router{steps: steps}
}

// Route computes the final recipients for a reply to original.
func (r *Router) Route(original *model.InboundMessage, reply model.AiReply, self string, policy Policy) model.RoutingDecision {
	req := Request{Original: original, Reply: reply, Self: self, Policy: policy}
	st := &State{}
	for _, step := range r.steps {
		step.Apply(req, st)
	}
	return model.RoutingDecision{To: st.To, Cc: st.Cc}
}

func applyAIOverride(req Request, st *State) {
	if !req.Policy.AllowAIRecipients || !req.Reply.OverridesRecipients() || len(req.Reply.Recipients) == 0 {
		return
	}
	st.To = ValidAddresses(req.Reply.Recipients)
	st.Cc = ValidAddresses(req.Reply.Cc)
	st.Overridden = true
}

func applyDefault(req Request, st *State) {
	if st.Overridden {
		return
	}

	st.To = append(st.To, req.Original.From)
	for _, addr := range req.Original.To {
		if !model.SameAddress(addr, req.Self) {
			st.To = append(st.To, addr)
		}
	}
	st.Cc = append(st.Cc, req.Original.Cc...)

	if req.Policy.AllowAIRecipients {
		st.To = append(st.To, ValidAddresses(req.Reply.Recipients)...)
		st.Cc = append(st.Cc, ValidAddresses(req.Reply.Cc)...)
	}
}

func applySenderDirectives(req Request, st *State) {
	if d, ok := req.Original.Directive(model.DirectiveSendToOnly); ok && ValidAddress(d.Address) {
		st.To = []string{strings.TrimSpace(d.Address)}
		st.Cc = nil
	}
	if d, ok := req.Original.Directive(model.DirectiveAddRecipient); ok && ValidAddress(d.Address) {
		st.Cc = append(st.Cc, strings.TrimSpace(d.Address))
	}
}

// applyCleanup deduplicates both lists and removes To addresses from Cc.
func applyCleanup(_ Request, st *State) {
	st.To = dedup(st.To)
	cc := dedup(st.Cc)

	inTo := make(map[string]bool, len(st.To))
	for _, addr := range st.To {
		inTo[addressKey(addr)] = true
	}
	st.Cc = lo.Filter(cc, func(addr string, _ int) bool {
		return !inTo[addressKey(addr)]
	})
}

func dedup(addrs []string) []string {
	addrs = lo.Filter(addrs, func(addr string, _ int) bool {
		return strings.TrimSpace(addr) != ""
	})
	return lo.Map(lo.UniqBy(addrs, addressKey), func(addr string, _ int) string {
		return strings.TrimSpace(addr)
	})
}

func addressKey(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ValidAddress reports whether addr is a bare, syntactically valid
// address with a dotted domain.
func ValidAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Name != "" || parsed.Address != addr {
		return false
	}
	domain := model.DomainOf(addr)
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// ValidAddresses keeps the valid entries of addrs, trimmed.
func ValidAddresses(addrs []string) []string {
	return lo.FilterMap(addrs, func(addr string, _ int) (string, bool) {
		addr = strings.TrimSpace(addr)
		return addr, ValidAddress(addr)
	})
}
