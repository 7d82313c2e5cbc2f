package whatsapp

import "regexp"

var (
	// Assistant citation markers like 【4:0†source】 mean nothing to a
	// WhatsApp user.
	citationPattern = regexp.MustCompile(`【.*?】`)

	// Markdown bold → WhatsApp bold.
	boldPattern = regexp.MustCompile(`\*\*(.*?)\*\*`)
)

// NormalizeReply rewrites assistant output for WhatsApp rendering.
func NormalizeReply(text string) string {
	out := citationPattern.ReplaceAllString(text, "")
	out = boldPattern.ReplaceAllString(out, "*$1*")
	return out
}
