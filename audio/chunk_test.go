package audio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitBase64(t *testing.T) {
	payload := strings.Repeat("a", 25)

	chunks := SplitBase64(payload, 10)
	require.Equal(t, []string{
		strings.Repeat("a", 10),
		strings.Repeat("a", 10),
		strings.Repeat("a", 5),
	}, chunks)
	require.Equal(t, payload, strings.Join(chunks, ""))
}

func TestSplitBase64ExactFit(t *testing.T) {
	payload := strings.Repeat("b", 20)
	chunks := SplitBase64(payload, 10)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		require.Len(t, c, 10)
	}
}

func TestSplitBase64Small(t *testing.T) {
	chunks := SplitBase64("abc", 10)
	require.Equal(t, []string{"abc"}, chunks)
}

func TestSplitBase64Empty(t *testing.T) {
	require.Nil(t, SplitBase64("", 10))
}

func TestSplitBase64DefaultCeiling(t *testing.T) {
	payload := strings.Repeat("c", MaxBase64ChunkLen+1)
	chunks := SplitBase64(payload, 0)
	require.Len(t, chunks, 2)
	require.Len(t, chunks[0], MaxBase64ChunkLen)
	require.Len(t, chunks[1], 1)
}
