// Package normalize turns raw, arbitrarily encoded message bodies into
// plain readable text.
//
// Normalization is a fixed sequence of stages, each a pure function over
// text that does nothing when its trigger is absent. The sequence is
// repeated until the text stops changing, so decoding that exposes more
// work (an entity that turns into a tag, quoted-printable inside base64)
// is finished in the same call and Normalize(Normalize(x)) == Normalize(x).
package normalize

import (
	"strings"
	"unicode/utf8"
)

// MinLength is the shortest result accepted before falling back to a
// minimally stripped copy of the input.
const MinLength = 10

// maxPasses bounds the fixed-point iteration.
const maxPasses = 12

// Stage is one named normalization step.
type Stage struct {
	Name  string
	Apply func(string) string
}

// Stages is the default pipeline, in order.
var Stages = []Stage{
	{"canonical-encoding", ToUTF8},
	{"plain-part", ExtractPlainPart},
	{"binary-blocks", StripBinaryBlocks},
	{"mime-structure", StripMIMEStructure},
	{"tags", StripTags},
	{"quoted-printable", DecodeQuotedPrintable},
	{"encoded-words", DecodeEncodedWords},
	{"hex-escapes", DecodeHexEscapes},
	{"repeated-signature", CollapseRepeatedSignature},
	{"entities", DecodeEntities},
	{"whitespace", NormalizeWhitespace},
}

// StrictStages is Stages with signature truncation before whitespace
// normalization.
var StrictStages = func() []Stage {
	out := make([]Stage, 0, len(Stages)+1)
	out = append(out, Stages[:len(Stages)-1]...)
	out = append(out, Stage{"signature-truncation", TruncateSignature})
	return append(out, Stages[len(Stages)-1])
}()

// Normalize cleans raw with the default stages. It never fails: when the
// result would be shorter than MinLength it returns a minimally stripped
// copy of the input instead.
func Normalize(raw string) string {
	return Run(raw, Stages)
}

// NormalizeStrict is Normalize with trailing signature blocks removed.
func NormalizeStrict(raw string) string {
	return Run(raw, StrictStages)
}

// Run applies stages to raw until a fixed point is reached.
func Run(raw string, stages []Stage) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = Fallback(raw)
		}
	}()

	cur := raw
	for i := 0; i < maxPasses; i++ {
		next := pass(cur, stages)
		if next == cur {
			return cur
		}
		cur = next
	}
	return cur
}

func pass(in string, stages []Stage) string {
	out := in
	for _, st := range stages {
		out = st.Apply(out)
	}
	out = strings.TrimSpace(out)

	if utf8.RuneCountInString(out) < MinLength {
		return Fallback(in)
	}
	return out
}

// Fallback is the minimal cleanup used when full normalization leaves
// too little: canonical encoding, structural headers and tags removed,
// whitespace collapsed.
func Fallback(raw string) string {
	s := ToUTF8(raw)
	s = StripMIMEStructure(s)
	s = StripTags(s)
	s = NormalizeWhitespace(s)
	return strings.TrimSpace(s)
}
