package ai

import "strings"

// Chat roles used in completion requests.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

const systemPrompt = `You are a reference assistant for technical domain questions.
Answer concisely. When reference material is provided, prefer it over general knowledge and say so when it does not cover the question.`

// Message is one chat turn in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnswerMessages builds the conversation sent to a completion model for a
// question and the locally retrieved reference text.
func AnswerMessages(question, reference string) []Message {
	var user strings.Builder
	if strings.TrimSpace(reference) != "" {
		user.WriteString("Reference material:\n")
		user.WriteString(reference)
		user.WriteString("\n\n")
	}
	user.WriteString("Question: ")
	user.WriteString(strings.TrimSpace(question))

	return []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: user.String()},
	}
}
