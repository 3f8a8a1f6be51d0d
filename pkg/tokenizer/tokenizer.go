package tokenizer

import "strings"

// CountTokens estimates how many tokens a chunk of text occupies.
// An estimate is enough for the per-chunk sizing stored in point
// payloads; exact counts would need the embedding model's tokenizer.
func CountTokens(text string) int {
	// English runs roughly four tokens per three words.
	words := strings.Fields(text)
	return max(len(words)*4/3, 1)
}
