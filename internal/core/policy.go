package core

import "strings"

// DecideLabel maps free-form classifier output to a verdict.
//
// "spam" wins only when "ham" is absent, "ham" wins otherwise, and anything
// else, including empty output, is unsure.
func DecideLabel(output string) Label {
	text := strings.ToLower(strings.TrimSpace(output))
	hasSpam := strings.Contains(text, "spam")
	hasHam := strings.Contains(text, "ham")

	switch {
	case hasSpam && !hasHam:
		return LabelSpam
	case hasHam:
		return LabelHam
	default:
		return LabelUnsure
	}
}
