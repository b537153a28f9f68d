// Package thread rebuilds the conversation a message replies to from its
// References chain.
package thread

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/nhle/mailreply/internal/crossref"
	"github.com/nhle/mailreply/internal/normalize"
)

// Lookup resolves a Message-ID to the raw body of the stored message.
// ok is false when no message in the mailbox carries that ID.
type Lookup interface {
	LookupBody(ctx context.Context, messageID string) (body string, ok bool, err error)
}

// Assembler resolves reference chains into normalized prior bodies.
type Assembler struct {
	lookup    Lookup
	normalize func(string) string
	logger    *log.Logger
}

// NewAssembler creates an Assembler backed by lookup. Bodies are cleaned
// with normalize.Normalize.
func NewAssembler(lookup Lookup, logger *log.Logger) *Assembler {
	return &Assembler{
		lookup:    lookup,
		normalize: normalize.Normalize,
		logger:    logger,
	}
}

// Assemble returns the normalized bodies of every Message-ID in chain that
// resolves, in chain order (oldest first). Unresolved IDs are skipped.
// A lookup error for one ID is logged and treated as unresolved; only a
// cancelled context stops the walk.
func (a *Assembler) Assemble(ctx context.Context, chain []string) ([]string, error) {
	var bodies []string
	for _, id := range chain {
		if err := ctx.Err(); err != nil {
			return bodies, err
		}

		body, ok, err := a.lookup.LookupBody(ctx, id)
		if err != nil {
			a.logger.Warn("thread lookup failed", "message_id", id, "err", err)
			continue
		}
		if !ok {
			a.logger.Debug("thread message not found", "message_id", id)
			continue
		}

		if clean := a.normalize(body); clean != "" {
			bodies = append(bodies, clean)
		}
	}
	return bodies, nil
}

// AssembleReferences parses a raw References header and assembles it.
func (a *Assembler) AssembleReferences(ctx context.Context, references string) ([]string, error) {
	chain := crossref.ExtractMessageIDs(references)
	if len(chain) == 0 {
		return nil, nil
	}
	return a.Assemble(ctx, chain)
}
