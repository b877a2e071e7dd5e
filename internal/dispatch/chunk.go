package dispatch

// maxMessageLen is the platform per-message length limit.
const maxMessageLen = 2000

// splitChunks slices text into contiguous pieces of at most maxLen bytes.
// Slicing is byte-exact with no boundary awareness: concatenating the
// chunks in order reproduces the input.
func splitChunks(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	chunks := make([]string, 0, len(text)/maxLen+1)
	for len(text) > maxLen {
		chunks = append(chunks, text[:maxLen])
		text = text[maxLen:]
	}
	return append(chunks, text)
}
