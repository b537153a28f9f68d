package pipeline

import "fmt"

// Kind classifies how processing of one message ended.
type Kind int

const (
	// Replied means a reply was sent and the original deleted.
	Replied Kind = iota

	// Dropped means a policy gate rejected the message.
	Dropped

	// RateLimited means the sender was over the limit and was notified.
	RateLimited

	// SendFailed means the reply could not be sent.
	SendFailed

	// Failed means processing stopped on an unexpected error.
	Failed
)

// Kinds lists every kind in display order.
var Kinds = []Kind{Replied, Dropped, RateLimited, SendFailed, Failed}

func (k Kind) String() string {
	switch k {
	case Replied:
		return "replied"
	case Dropped:
		return "dropped"
	case RateLimited:
		return "rate_limited"
	case SendFailed:
		return "send_failed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of processing one message. Expected rejections
// are outcomes, not errors.
type Outcome struct {
	Kind Kind

	// Reason names the gate for Dropped outcomes.
	Reason string

	// Err is the cause for SendFailed and Failed outcomes.
	Err error
}

// Detail returns the reason or error text, if any.
func (o Outcome) Detail() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return o.Reason
}

func replied() Outcome              { return Outcome{Kind: Replied} }
func dropped(reason string) Outcome { return Outcome{Kind: Dropped, Reason: reason} }
func sendFailed(err error) Outcome  { return Outcome{Kind: SendFailed, Err: err} }
func failed(err error) Outcome      { return Outcome{Kind: Failed, Err: err} }

func rateLimited(used, limit int) Outcome {
	return Outcome{Kind: RateLimited, Reason: fmt.Sprintf("%d/%d requests in window", used, limit)}
}

// Result pairs a message with its outcome.
type Result struct {
	UID       uint32
	MessageID string
	From      string
	Subject   string
	Outcome   Outcome
}

// Summary describes one batch.
type Summary struct {
	Results []Result
}

// Count returns how many results have kind k.
func (s Summary) Count(k Kind) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome.Kind == k {
			n++
		}
	}
	return n
}

// Total returns the number of messages seen in the batch.
func (s Summary) Total() int {
	return len(s.Results)
}
