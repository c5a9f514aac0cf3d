package suggest

import (
	"fmt"
	"strings"
)

// Delimiter separates the questions in the provider reply and in the API response.
const Delimiter = "||"

// QuestionCount is how many questions every prompt asks for.
const QuestionCount = 3

// BuildPrompt composes the instruction sent to the provider.
func BuildPrompt(p Params) string {
	p = p.Normalize()

	var b strings.Builder
	fmt.Fprintf(&b, "Create a list of exactly %d open-ended questions that an anonymous visitor could send to %q ", QuestionCount, p.Recipient)
	b.WriteString("on an anonymous social messaging platform. ")
	fmt.Fprintf(&b, "The questions should sound %s. ", p.Tone.Descriptor())
	fmt.Fprintf(&b, "They should explore %s, with a focus on %s. ", p.Topic.Descriptor(), p.Niche.Descriptor())
	b.WriteString("Keep them suitable for a diverse audience and avoid personal or sensitive subjects. ")
	fmt.Fprintf(&b, "Return all %d questions as a single line separated only by '%s'. ", QuestionCount, Delimiter)
	b.WriteString("Do not number them, do not add quotes, and do not write any text before, between or after the questions. ")
	fmt.Fprintf(&b, "Example format: 'First question?%sSecond question?%sThird question?'", Delimiter, Delimiter)
	return b.String()
}

// SplitSuggestions splits a provider reply on the delimiter, trimming each
// item and dropping empty ones.
func SplitSuggestions(text string) []string {
	parts := strings.Split(text, Delimiter)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.Trim(strings.TrimSpace(part), `"'`))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
