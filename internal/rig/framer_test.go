package rig

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, f *Framer) []string {
	t.Helper()
	var out []string
	for {
		rec, err := f.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestFramerDelimiters(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		delims string
		want   []string
	}{
		{"arroba", "1750,0@1760,1000@", "@", []string{"1750,0", "1760,1000"}},
		{"nova linha", "1750,0\n1760,1000\n", "\n", []string{"1750,0", "1760,1000"}},
		{"misto", "1750,0@\n1760,1000\r\nOK STOP@", "@\n", []string{"1750,0", "1760,1000", "OK STOP"}},
		{"vazios ignorados", "@@\n 1,2 @@", "@\n", []string{"1,2"}},
		{"registro final sem delimitador", "1,2@3,4", "@", []string{"1,2", "3,4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer(strings.NewReader(tt.input), tt.delims)
			assert.Equal(t, tt.want, collect(t, f))
		})
	}
}

func TestFramerSplitReads(t *testing.T) {
	// Um byte por leitura: registros atravessam várias leituras
	r := iotest.OneByteReader(strings.NewReader("1750.5,100@1751.5,200@"))
	f := NewFramer(r, "@")
	assert.Equal(t, []string{"1750.5,100", "1751.5,200"}, collect(t, f))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// scriptedReader devolve cada passo em uma leitura
type scriptedReader struct {
	steps []interface{}
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	switch v := step.(type) {
	case string:
		return copy(p, v), nil
	case error:
		return 0, v
	}
	return 0, nil
}

func TestFramerTimeoutKeepsPartialRecord(t *testing.T) {
	r := &scriptedReader{steps: []interface{}{"17", timeoutErr{}, "50,0@"}}
	f := NewFramer(r, "@")

	_, err := f.Next()
	require.Error(t, err)
	assert.True(t, isTimeout(err))
	assert.Equal(t, 2, f.Buffered())

	rec, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, "1750,0", rec)
}

func TestFramerRecordTooLong(t *testing.T) {
	f := NewFramer(strings.NewReader(strings.Repeat("x", maxRecordSize+10)), "@")
	_, err := f.Next()
	assert.ErrorIs(t, err, ErrRecordTooLong)
	assert.Equal(t, 0, f.Buffered())
}
