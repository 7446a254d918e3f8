package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDecimal(t *testing.T) {
	cases := map[float64]string{
		1000:   "1000.0",
		0.8:    "0.8",
		1500.5: "1500.5",
		0:      "0.0",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatDecimal(in))
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "16", FormatNumber(16))
	assert.Equal(t, "0.01", FormatNumber(0.01))
	assert.Equal(t, "2.5", FormatNumber(2.5))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "1.5", FormatFloat(1.50, 3))
	assert.Equal(t, "2", FormatFloat(2.0, 2))
	assert.Equal(t, "100", FormatFloat(100, 0))
}

func TestFloat32Bytes(t *testing.T) {
	assert.Equal(t, []byte{0x43, 0x66, 0x80, 0x00}, Float32ToBytes(230.5))
	assert.Equal(t, []byte{0xff, 0xf4}, Int16ToBytes(-12))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h 0m 1s", FormatDuration(time.Hour+time.Second))
	assert.Equal(t, 1500*time.Millisecond, MicrosToDuration(1_500_000))
	assert.Equal(t, 1.5, MicrosToSeconds(1_500_000))
}
