package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailreply/internal/model"
)

func TestParseReply_StructuredBlock(t *testing.T) {
	block := "```json\n{\"recipients\":[\"a@x.com\"],\"cc\":[\"b@x.com\"]}\n```"
	text := "Merhaba,\n\nToplantı yarın saat 10'da.\n\n" + block

	reply := ParseReply(text)
	assert.Equal(t, []string{"a@x.com"}, reply.Recipients)
	assert.Equal(t, []string{"b@x.com"}, reply.Cc)
	assert.NotContains(t, reply.Content, block)
	assert.Equal(t, "Merhaba,\n\nToplantı yarın saat 10'da.", reply.Content)
	assert.Empty(t, reply.Instructions)
	assert.False(t, reply.OverridesRecipients())
}

func TestParseReply_StructuredInstructions(t *testing.T) {
	text := "Tamam.\n```json\n{\"recipients\":[\"a@x.com\", 5],\"only_to_these_recipients\":true,\"priority\":\"high\"}\n```\n"

	reply := ParseReply(text)
	require.Len(t, reply.Instructions, 2)
	assert.Equal(t, []string{"a@x.com"}, reply.Recipients, "non-string entries are skipped")
	assert.True(t, reply.OverridesRecipients())

	// Keys are visited in sorted order.
	assert.Equal(t, model.InstructionOverrideRecipients, reply.Instructions[0].Kind)
	assert.Equal(t, "only_to_these_recipients", reply.Instructions[0].Key)
	assert.Equal(t, model.InstructionOpaque, reply.Instructions[1].Kind)
	assert.Equal(t, "priority", reply.Instructions[1].Key)
	assert.JSONEq(t, `"high"`, string(reply.Instructions[1].Raw))
	assert.Equal(t, "Tamam.", reply.Content)
}

func TestParseReply_NonArrayRecipientsIgnored(t *testing.T) {
	reply := ParseReply("Yanıt\n```json\n{\"recipients\":\"a@x.com\",\"cc\":null}\n```")
	assert.Empty(t, reply.Recipients)
	assert.Empty(t, reply.Cc)
	assert.Equal(t, "Yanıt", reply.Content)
}

func TestParseReply_OverrideFlagValues(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"false", false},
		{"1", true},
		{"0", false},
		{`"true"`, true},
		{`"false"`, false},
		{`"evet"`, true},
		{"null", false},
	}
	for _, tt := range tests {
		reply := ParseReply("x\n```json\n{\"recipients\":[\"a@x.com\"],\"override_recipients\":" + tt.value + "}\n```")
		assert.Equal(t, tt.want, reply.OverridesRecipients(), "value %s", tt.value)
	}
}

func TestParseReply_InvalidBlockFallsBackToPatterns(t *testing.T) {
	text := "Cevabı sadece ali@x.com'a gönder\n```json\n{not json}\n```"

	reply := ParseReply(text)
	assert.Equal(t, []string{"ali@x.com"}, reply.Recipients)
	assert.True(t, reply.OverridesRecipients())
	assert.Equal(t, text, reply.Content, "an invalid block stays in the content")
}

func TestParseReply_NaturalLanguage(t *testing.T) {
	t.Run("reply only", func(t *testing.T) {
		reply := ParseReply("Cevabı sadece veli@x.com'a gönder lütfen.")
		assert.Equal(t, []string{"veli@x.com"}, reply.Recipients)
		assert.Empty(t, reply.Cc)
		assert.True(t, reply.OverridesRecipients())
	})

	t.Run("dotless i and e suffix", func(t *testing.T) {
		reply := ParseReply("cevabi sadece ayse@y.com.tr'e gönder")
		assert.Equal(t, []string{"ayse@y.com.tr"}, reply.Recipients)
	})

	t.Run("also add", func(t *testing.T) {
		reply := ParseReply("Tamamdır. Şunu da ekle: mehmet@x.com")
		assert.Empty(t, reply.Recipients)
		assert.Equal(t, []string{"mehmet@x.com"}, reply.Cc)
		assert.False(t, reply.OverridesRecipients())
	})

	t.Run("both fire", func(t *testing.T) {
		reply := ParseReply("Cevabı sadece a@x.com'a gönder. Şunu da ekle: b@x.com")
		assert.Equal(t, []string{"a@x.com"}, reply.Recipients)
		assert.Equal(t, []string{"b@x.com"}, reply.Cc)
	})
}

func TestParseReply_NothingExtracted(t *testing.T) {
	reply := ParseReply("  \n Merhaba, yardımcı olabilirim.\n\n")
	assert.Equal(t, "Merhaba, yardımcı olabilirim.", reply.Content)
	assert.Empty(t, reply.Recipients)
	assert.Empty(t, reply.Cc)
	assert.Empty(t, reply.Instructions)
}

func TestExtractInbound(t *testing.T) {
	body := "\n  Kısa ve resmi yanıtla  \nCevabı sadece ali@x.com'a gönder\nŞunu da ekle: veli@x.com\n"

	in := ExtractInbound(body, false)
	assert.Equal(t, "Kısa ve resmi yanıtla", in.CustomPrompt)
	assert.Empty(t, in.Directives)

	in = ExtractInbound(body, true)
	assert.Equal(t, []model.SenderDirective{
		{Kind: model.DirectiveSendToOnly, Address: "ali@x.com"},
		{Kind: model.DirectiveAddRecipient, Address: "veli@x.com"},
	}, in.Directives)

	var msg model.InboundMessage
	in.Apply(&msg)
	assert.Equal(t, "Kısa ve resmi yanıtla", msg.CustomPrompt)
	d, ok := msg.Directive(model.DirectiveAddRecipient)
	require.True(t, ok)
	assert.Equal(t, "veli@x.com", d.Address)

	assert.Equal(t, "", ExtractInbound("", true).CustomPrompt)
}
