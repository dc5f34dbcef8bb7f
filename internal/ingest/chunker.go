// Package ingest handles document upload: chunking, embedding, and storage
// with authorization payload.
package ingest

import "strings"

// defaultChunkLen is the character budget per chunk.
const defaultChunkLen = 800

// Chunk splits text into word-preserving chunks of at most maxLen characters.
// maxLen <= 0 uses the default. A word longer than maxLen becomes its own
// chunk rather than being split mid-word.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = defaultChunkLen
	}

	words := strings.Fields(text)
	var chunks []string
	var cur []string
	curLen := 0

	for _, w := range words {
		if curLen+len(w)+1 > maxLen && len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
			cur = []string{w}
			curLen = len(w)
		} else {
			cur = append(cur, w)
			curLen += len(w) + 1
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, " "))
	}
	return chunks
}
