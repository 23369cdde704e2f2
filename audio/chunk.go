package audio

// MaxBase64ChunkLen is the ceiling on base64 characters per
// input_audio_buffer.append event. The transport has a practical
// message-size limit, so caller audio is appended in bounded chunks.
const MaxBase64ChunkLen = 15000

// SplitBase64 cuts an encoded audio payload into chunks of at most maxLen
// characters, preserving order. maxLen <= 0 falls back to
// MaxBase64ChunkLen.
func SplitBase64(encoded string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = MaxBase64ChunkLen
	}
	if encoded == "" {
		return nil
	}

	chunks := make([]string, 0, len(encoded)/maxLen+1)
	for len(encoded) > maxLen {
		chunks = append(chunks, encoded[:maxLen])
		encoded = encoded[maxLen:]
	}
	return append(chunks, encoded)
}
