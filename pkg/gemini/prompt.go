package gemini

import "strings"

// DefaultPreamble is the persona instruction placed ahead of every prompt.
const DefaultPreamble = "You are a friendly AI assistant.\nBe slightly conversational and you may use emojis."

const (
	fileContentHeader = "File content:"
	userMessageHeader = "User message:"
)

// BuildPrompt assembles the outbound text: the preamble, then the file content
// section, then the user message section. Sections whose input is blank are
// omitted and the rest are separated by a blank line.
func BuildPrompt(preamble string, req ChatRequest) string {
	if strings.TrimSpace(preamble) == "" {
		preamble = DefaultPreamble
	}

	sections := []string{preamble}

	if strings.TrimSpace(req.FileContent) != "" {
		sections = append(sections, fileContentHeader+"\n"+req.FileContent)
	}

	if strings.TrimSpace(req.Prompt) != "" {
		sections = append(sections, userMessageHeader+"\n"+req.Prompt)
	}

	return strings.Join(sections, "\n\n")
}
