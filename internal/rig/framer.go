package rig

import (
	"bytes"
	"io"
	"strings"
)

const (
	readChunkSize = 4096
	// Acima disso sem delimitador o buffer é descartado
	maxRecordSize = 64 * 1024
)

// Framer separa o fluxo de bytes da bancada em registros de texto.
// Qualquer byte do conjunto de delimitadores encerra um registro, o que
// permite aceitar '@', '\n' ou os dois misturados.
type Framer struct {
	r      io.Reader
	delims string
	buf    []byte
	chunk  []byte
	eof    bool
}

// NewFramer cria um framer para o conjunto de delimitadores informado
func NewFramer(r io.Reader, delims string) *Framer {
	if delims == "" {
		delims = "\n"
	}
	return &Framer{
		r:      r,
		delims: delims,
		chunk:  make([]byte, readChunkSize),
	}
}

// Next retorna o próximo registro não vazio, sem espaços nas pontas.
// Em caso de timeout os bytes parciais ficam no buffer e a chamada pode ser
// repetida sem perda.
func (f *Framer) Next() (string, error) {
	for {
		if record, ok := f.pop(); ok {
			return record, nil
		}

		if f.eof {
			// Registro final sem delimitador
			if record := strings.TrimSpace(string(f.buf)); record != "" {
				f.buf = f.buf[:0]
				return record, nil
			}
			return "", io.EOF
		}

		n, err := f.r.Read(f.chunk)
		if n > 0 {
			f.buf = append(f.buf, f.chunk[:n]...)
			if len(f.buf) > maxRecordSize && bytes.IndexAny(f.buf, f.delims) < 0 {
				f.buf = f.buf[:0]
				return "", ErrRecordTooLong
			}
		}
		if err == io.EOF {
			f.eof = true
			continue
		}
		if err != nil {
			return "", err
		}
	}
}

// Buffered retorna quantos bytes aguardam delimitador
func (f *Framer) Buffered() int {
	return len(f.buf)
}

func (f *Framer) pop() (string, bool) {
	for {
		idx := bytes.IndexAny(f.buf, f.delims)
		if idx < 0 {
			return "", false
		}
		record := strings.TrimSpace(string(f.buf[:idx]))
		f.buf = append(f.buf[:0], f.buf[idx+1:]...)
		if record != "" {
			return record, true
		}
	}
}
