package utils

import "fmt"

const classifyPromptFormat = `You are a spam filter.

From: %s
Subject: %s
Body: %s

Classify this email strictly as one of: spam, ham, unsure.
Return ONLY the label word.`

// SystemPrompt is sent as the system message by providers that support one
const SystemPrompt = "You are a spam filter. Answer with a single word: spam, ham or unsure."

// ClassifyPrompt builds the classification prompt for one email.
// The snippet is sanitized and truncated to maxBodySize bytes.
func (tp *TextProcessor) ClassifyPrompt(sender, subject, snippet string, maxBodySize int) string {
	return fmt.Sprintf(classifyPromptFormat,
		tp.SanitizeUTF8(sender),
		tp.SanitizeUTF8(subject),
		tp.ProcessText(snippet, maxBodySize))
}
