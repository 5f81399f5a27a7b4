package yenc

import (
	"bytes"
	"fmt"
	"io"
)

// DecodedPart is the result of a one-shot decode: the fully decoded payload
// plus the header metadata it carried.
type DecodedPart struct {
	Metadata Metadata
	Data     []byte
}

// DecodeOneShot decodes an entire yEnc part already held in memory. It is
// the simpler counterpart to Decoder for small articles and for tests that
// want byte-identical output without standing up an io.Reader pipeline;
// both paths share the same header/trailer parsing and escape rules and are
// expected to produce identical output for the same input.
func DecodeOneShot(data []byte) (*DecodedPart, error) {
	dec := NewDecoder(bytes.NewReader(data))
	if err := dec.DiscardHeader(); err != nil {
		return nil, err
	}

	buf := make([]byte, 32*1024)
	var out bytes.Buffer
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("yenc: decoding: %w", err)
		}
	}

	return &DecodedPart{Metadata: dec.Metadata(), Data: out.Bytes()}, nil
}
