package ai

import (
	"fmt"
	"strings"

	"github.com/nhle/mailreply/internal/model"
)

// FormatInstruction asks for Markdown formatting and emoji in replies.
const FormatInstruction = "Asla Emoji ve Markdown kullanmadan yanıt verme! Tüm cevaplarında Markdown formatını kullanmalısın ve cevabında emojiler kullanmalısın.\n" +
	"Önemli kelime öbeklerinin altını çizmeli (__altı çizili__), önemli yerleri bold yapmalı (**kalın**), kısa alıntıları yatık yapmalı (*italik*) gibi biçimleri uygulamalısın.\n" +
	"Markdown formatını kullanmalısın. Emojiler için Unicode UTF-8 kullanmalısın. Her başlıkta en az bir emoji kullanmalısın. Örneğin: 👍 🎉 ✅ 😊 👋 🚀 ⚠️ ❗ ❓ ✨ 💡 gibi. Emojiler e-posta içeriğinde görünecek ve mesajı daha canlı hale getirecektir."

// RecipientInstruction describes the JSON block the model may append to
// route the reply.
const RecipientInstruction = "Yanıtını oluştururken, özel talimatlar için JSON formatını kullanabilirsin. Eğer sana e-posta gönderen kişi e-postayı sadece kime göndermen ya da bu e-posta gönderimine eklemen kişileri açık bir şekilde belirttiyse bunları, aşağıdaki gibi bir JSON bloğunda planlayabilirsin:\n" +
	"\n" +
	"```json\n" +
	"{\n" +
	"\"recipients\": [\"ornek@example.com\"],\n" +
	"\"cc\": [\"kopya@example.com\"],\n" +
	"\"only_to_these_recipients\": true\n" +
	"}\n" +
	"```\n" +
	"\n" +
	"Bu JSON bloğu, yanıtının sonunda yer almalıdır ve normal yanıt metninden ayrı olmalıdır. JSON bloğu olmadan da yanıt verebilirsin, bu durumda varsayılan olarak tüm alıcılara yanıt gönderilecektir.\n" +
	"Sana e-posta gönderen bu e-postayı sadece belli kişilere göndermeni ya da belli kişileri eklemen gerektiğini belirtmediyse kesinlikle eposta akışında olan e-postaları toplayıp cevap verme!\n" +
	"Hayali e-postalar uydurma. Burada insanlar tarafından hatalı to ve cc'ler yazılabileceği için sana kesin olarak verilen direktiflerin dışına çıkmamalısın."

// BuildPrompt renders the user segment for msg: the sender's custom
// directive, the latest message and the earlier thread messages. Thread
// bodies are stored oldest first and presented newest first.
func BuildPrompt(msg *model.InboundMessage) string {
	var sb strings.Builder

	if custom := strings.TrimSpace(msg.CustomPrompt); custom != "" {
		sb.WriteString("Özel Yönerge: " + custom + "\n\n")
	}

	sb.WriteString("Son E-posta:\n")
	sb.WriteString(fmt.Sprintf("Kimden: %s <%s>\n", msg.FromName, msg.From))
	sb.WriteString("Konu: " + msg.Subject + "\n")
	sb.WriteString("İçerik:\n" + msg.CleanBody + "\n\n")

	if len(msg.ThreadBodies) > 0 {
		sb.WriteString("Önceki E-postalar:\n")
		n := 1
		for i := len(msg.ThreadBodies) - 1; i >= 0; i-- {
			sb.WriteString(fmt.Sprintf("--- E-posta %d ---\n", n))
			sb.WriteString(msg.ThreadBodies[i] + "\n\n")
			n++
		}
	}

	return sb.String()
}

// NewReplyRequest assembles the segments for answering msg.
func NewReplyRequest(systemPrompt string, msg *model.InboundMessage, allowAIRecipients bool) Request {
	req := NewRequest()
	req.Add(RoleSystem, systemPrompt)
	req.Add(RoleUser, BuildPrompt(msg))
	req.Add(RoleSystem, FormatInstruction)
	if allowAIRecipients {
		req.Add(RoleSystem, RecipientInstruction)
	}
	return req
}
