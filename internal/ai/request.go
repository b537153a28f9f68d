package ai

import "strings"

// Role identifies the author of a request segment.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Segment is one role-tagged piece of a request.
type Segment struct {
	Role    Role
	Content string
}

// Params holds the generation parameters sent with every request.
type Params struct {
	Temperature      float64
	MaxTokens        int64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// DefaultParams are the parameters replies are generated with.
var DefaultParams = Params{
	Temperature:      0.7,
	MaxTokens:        7000,
	TopP:             0.9,
	FrequencyPenalty: 0.1,
	PresencePenalty:  0.3,
}

// Request is an ordered list of segments plus generation parameters.
type Request struct {
	Segments []Segment
	Params   Params
}

// NewRequest creates an empty request with DefaultParams.
func NewRequest() Request {
	return Request{Params: DefaultParams}
}

// Add appends a segment. Empty content is skipped.
func (r *Request) Add(role Role, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	r.Segments = append(r.Segments, Segment{Role: role, Content: content})
}

// String renders the segments for debug logging.
func (r Request) String() string {
	var sb strings.Builder
	for i, s := range r.Segments {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("[" + string(s.Role) + "]\n")
		sb.WriteString(s.Content)
	}
	return sb.String()
}
