package dreamscreen

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

func TestCalculateCRC8_CheckValue(t *testing.T) {
	assert.Equal(t, byte(0xF4), CalculateCRC8([]byte("123456789")))
	assert.Equal(t, byte(0x00), CalculateCRC8(nil))
}

func TestVerifyCRC8(t *testing.T) {
	frame := mustHex(t, "FC 06 00 10 03 01 03 12")
	require.NoError(t, VerifyCRC8(frame))

	frame[len(frame)-1] ^= 0x01
	assert.ErrorIs(t, VerifyCRC8(frame), ErrChecksumMismatch)
	assert.Error(t, VerifyCRC8([]byte{0xFC}))
}

func TestEncode_ReferenceVectors(t *testing.T) {
	cases := []struct {
		name    string
		group   byte
		flags   byte
		cmd     Command
		payload []byte
		want    string
	}{
		{"mode ambient", 0x00, FlagWrite, CmdMode, []byte{0x03}, "FC 06 00 10 03 01 03 12"},
		{"scan", GroupAny, FlagBroadcastRead, CmdSerialNumber, nil, "FC 05 FF 21 01 03 DC"},
		{"color", 0x02, FlagWrite, CmdColor, []byte{0xFF, 0x80, 0x00}, "FC 08 02 10 03 05 FF 80 00 4E"},
		{"refresh request", GroupAny, FlagBroadcastRead, CmdRefresh, nil, "FC 05 FF 21 01 0A E3"},
		{"input", 0x03, FlagWrite, CmdInput, []byte{0x02}, "FC 06 03 10 03 20 02 08"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Encode(tc.group, tc.flags, tc.cmd, tc.payload)
			assert.Equal(t, mustHex(t, tc.want), got)
		})
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	payload := []byte{0xFF, 0x80, 0x00}
	raw := Encode(0x02, FlagWrite, CmdColor, payload)

	f, err := Decode(raw, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x02), f.Group)
	assert.Equal(t, FlagWrite, f.Flags)
	assert.Equal(t, CmdColor, f.Command)
	assert.Equal(t, payload, f.Payload)
	assert.Equal(t, byte(0x4E), f.Checksum)
	assert.Equal(t, 8, f.Length())
	assert.False(t, f.IsRead())
	assert.Equal(t, raw, f.Bytes())
}

func TestEncode_PayloadLimit(t *testing.T) {
	raw := Encode(0, FlagWrite, CmdColor, make([]byte, MaxPayloadSize))
	assert.Equal(t, byte(0xFF), raw[1])
	f, err := Decode(raw, 0)
	require.NoError(t, err)
	assert.Len(t, f.Payload, MaxPayloadSize)

	assert.Panics(t, func() { Encode(0, FlagWrite, CmdColor, make([]byte, MaxPayloadSize+10)) })
}

func TestDecode_WithOffsetAndTrailingBytes(t *testing.T) {
	raw := append([]byte{0xAA, 0xBB}, mustHex(t, "FC 05 FF 21 01 03 DC")...)
	raw = append(raw, 0x00, 0x00)

	f, err := Decode(raw, 2)
	require.NoError(t, err)
	assert.Equal(t, CmdSerialNumber, f.Command)
	assert.True(t, f.IsRead())
	assert.Empty(t, f.Payload)
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":          {},
		"six bytes":      {0xFC, 0x05, 0xFF, 0x21, 0x01, 0x03},
		"bad marker":     {0xFD, 0x05, 0xFF, 0x21, 0x01, 0x03, 0xDC},
		"length overrun": {0xFC, 0x09, 0xFF, 0x21, 0x01, 0x03, 0xDC},
		"length too low": {0xFC, 0x04, 0xFF, 0x21, 0x01, 0x03, 0xDC},
		"bad checksum":   {0xFC, 0x05, 0xFF, 0x21, 0x01, 0x03, 0xDD},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw, 0)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}

	_, err := Decode([]byte{0xFC}, 5)
	assert.ErrorIs(t, err, ErrMalformed)
}

// 任意单比特翻转都必须被 CRC 或结构检查拒绝
func TestDecode_SingleBitFlip(t *testing.T) {
	raw := Encode(0x02, FlagWrite, CmdColor, []byte{0x10, 0x20, 0x30})
	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), raw...)
			mutated[i] ^= 1 << bit
			_, err := Decode(mutated, 0)
			assert.Error(t, err, "byte %d bit %d", i, bit)
		}
	}
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "mode", CmdMode.String())
	assert.True(t, CmdScene.Known())

	unknown := Command{0x07, 0x7F}
	assert.Equal(t, "0x077F", unknown.String())
	assert.False(t, unknown.Known())
}
