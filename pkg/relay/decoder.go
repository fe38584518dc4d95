package relay

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const decodeBufSize = 4096

// Decoder incrementally decodes UTF-8 byte chunks into text. A multi-byte
// sequence split across chunks is held back until the rest arrives. Invalid
// bytes decode to U+FFFD.
type Decoder struct {
	t       transform.Transformer
	pending []byte
	buf     []byte
}

// NewDecoder creates a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		t:   unicode.UTF8.NewDecoder(),
		buf: make([]byte, decodeBufSize),
	}
}

// Decode returns the text decodable from p plus any bytes held over from the
// previous call.
func (d *Decoder) Decode(p []byte) string {
	src := p
	if len(d.pending) > 0 {
		src = append(d.pending, p...)
	}

	out, rest := d.transform(src, false)
	d.pending = append(d.pending[:0:0], rest...)
	return out
}

// Flush decodes any held-over bytes as end of input and resets the Decoder.
func (d *Decoder) Flush() string {
	out, _ := d.transform(d.pending, true)
	d.pending = nil
	d.t.Reset()
	return out
}

func (d *Decoder) transform(src []byte, atEOF bool) (string, []byte) {
	var sb strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.buf, src, atEOF)
		sb.Write(d.buf[:nDst])
		src = src[nSrc:]

		if errors.Is(err, transform.ErrShortDst) {
			continue
		}
		// ErrShortSrc leaves an incomplete trailing sequence in src.
		return sb.String(), src
	}
}
