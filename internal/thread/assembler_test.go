package thread

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	bodies map[string]string
	failOn string
	calls  []string
}

func (f *fakeLookup) LookupBody(_ context.Context, id string) (string, bool, error) {
	f.calls = append(f.calls, id)
	if id == f.failOn {
		return "", false, errors.New("connection reset")
	}
	body, ok := f.bodies[id]
	return body, ok, nil
}

func newTestAssembler(l Lookup) *Assembler {
	return NewAssembler(l, log.New(io.Discard))
}

func TestAssemble_SkipsUnresolvedAndKeepsOrder(t *testing.T) {
	lookup := &fakeLookup{bodies: map[string]string{
		"a@x.com": "İlk mesajın gövdesi burada.",
		"c@x.com": "<p>Üçüncü mesaj&nbsp;burada</p>",
	}}

	got, err := newTestAssembler(lookup).Assemble(context.Background(), []string{"a@x.com", "b@x.com", "c@x.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"İlk mesajın gövdesi burada.", "Üçüncü mesaj burada"}, got)
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, lookup.calls)
}

func TestAssemble_LookupErrorIsSkipped(t *testing.T) {
	lookup := &fakeLookup{
		bodies: map[string]string{"b@x.com": "İkinci mesajın içeriği."},
		failOn: "a@x.com",
	}

	got, err := newTestAssembler(lookup).Assemble(context.Background(), []string{"a@x.com", "b@x.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"İkinci mesajın içeriği."}, got)
}

func TestAssemble_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lookup := &fakeLookup{}
	_, err := newTestAssembler(lookup).Assemble(ctx, []string{"a@x.com"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, lookup.calls)
}

func TestAssembleReferences(t *testing.T) {
	lookup := &fakeLookup{bodies: map[string]string{
		"a@x.com": "Birinci mesaj metni.",
		"b@x.com": "İkinci mesaj metni.",
	}}

	got, err := newTestAssembler(lookup).AssembleReferences(context.Background(), "<a@x.com> <b@x.com>")
	require.NoError(t, err)
	assert.Equal(t, []string{"Birinci mesaj metni.", "İkinci mesaj metni."}, got)

	got, err = newTestAssembler(lookup).AssembleReferences(context.Background(), "  ")
	require.NoError(t, err)
	assert.Nil(t, got)
}
