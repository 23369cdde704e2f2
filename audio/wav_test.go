package audio

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pcm := make([]byte, 4804)
	_, err := rand.New(rand.NewSource(1)).Read(pcm)
	require.NoError(t, err)

	wav, err := EncodeWAV(pcm, DefaultSampleRate, DefaultChannels, DefaultBitDepth)
	require.NoError(t, err)
	require.Len(t, wav, headerSize+len(pcm))

	out, err := DecodeWAV(wav)
	require.NoError(t, err)
	require.Equal(t, pcm, out)
}

func TestEncodeWAVHeaderFields(t *testing.T) {
	pcm := make([]byte, 1000)
	wav, err := EncodeWAV(pcm, 24000, 1, 16)
	require.NoError(t, err)

	require.Equal(t, "RIFF", string(wav[0:4]))
	require.Equal(t, "WAVE", string(wav[8:12]))
	require.Equal(t, "fmt ", string(wav[12:16]))
	require.Equal(t, "data", string(wav[36:40]))

	overallSize := binary.LittleEndian.Uint32(wav[4:8])
	dataSize := binary.LittleEndian.Uint32(wav[40:44])
	require.Equal(t, uint32(36)+dataSize, overallSize)
	require.Equal(t, uint32(len(pcm)), dataSize)

	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[20:22])) // PCM format code
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24])) // channels
	require.Equal(t, uint32(24000), binary.LittleEndian.Uint32(wav[24:28]))

	byteRate := binary.LittleEndian.Uint32(wav[28:32])
	require.Equal(t, uint32(24000*1*16/8), byteRate)
	require.Equal(t, uint16(1*16/8), binary.LittleEndian.Uint16(wav[32:34])) // block align
	require.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]))
}

func TestEncodeWAVRejectsBadParams(t *testing.T) {
	_, err := EncodeWAV(nil, 0, 1, 16)
	require.Error(t, err)
	_, err = EncodeWAV(nil, 24000, 0, 16)
	require.Error(t, err)
	_, err = EncodeWAV(nil, 24000, 1, 12)
	require.Error(t, err)
}

func TestDecodeWAVTooShort(t *testing.T) {
	_, err := DecodeWAV(make([]byte, 43))
	require.Error(t, err)
}

func TestDecodeWAVEmptyData(t *testing.T) {
	wav, err := EncodeWAV(nil, 24000, 1, 16)
	require.NoError(t, err)
	out, err := DecodeWAV(wav)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestIsWAV(t *testing.T) {
	wav, err := EncodeWAV([]byte{1, 2, 3, 4}, 24000, 1, 16)
	require.NoError(t, err)
	require.True(t, IsWAV(wav))
	require.False(t, IsWAV([]byte{1, 2, 3, 4}))
	require.False(t, IsWAV([]byte("RIFF")))
}

func TestDuration(t *testing.T) {
	// One second of PCM16 mono at 24kHz is 48000 bytes.
	pcm := make([]byte, 48000)
	require.InDelta(t, 1.0, Duration(pcm, 24000), 1e-9)
	require.InDelta(t, 0.5, Duration(pcm[:24000], 24000), 1e-9)
	require.Zero(t, Duration(pcm, 0))
}
