package domain

import "unicode/utf8"

const charsPerToken = 4

// EstimateTokens approximates a token count as characters / 4, rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}

// EstimateMessagesTokens sums EstimateTokens over all message contents.
func EstimateMessagesTokens(messages []ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}
