package yenc

import (
	"bufio"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// Decoder streams a yEnc-encoded article body through io.Reader, decoding
// escape bytes as it goes so callers never have to
// buffer the whole part in memory. Grounded on the same scan-ahead-for-=yend
// structure used elsewhere in the corpus's yEnc readers, adapted to expose
// Metadata and a Verify step driven by a caller-selected strictness policy.
type Decoder struct {
	r       *bufio.Reader
	meta    Metadata
	done    bool
	escaped bool
	crc     hash.Hash32
}

// NewDecoder wraps r, ready to have DiscardHeader called on it. r must
// already be positioned at the start of the article body (dot-stuffing, if
// any, must already be reversed by the transport layer — see nntp.Conn).
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   bufio.NewReaderSize(r, 32*1024),
		crc: crc32.NewIEEE(),
	}
}

// DiscardHeader scans forward to and past the =ybegin line (and a following
// =ypart line, if present), populating Metadata. It must be called exactly
// once, before the first Read.
func (d *Decoder) DiscardHeader() error {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if line == "" {
				return fmt.Errorf("yenc: scanning for header: %w", err)
			}
		}
		if hasPrefix(line, "=ybegin") {
			parseYBeginLine(line, &d.meta)
			return d.discardPartHeader()
		}
		if err != nil {
			return ErrHeaderNotFound{}
		}
	}
}

// discardPartHeader peeks for an immediately-following =ypart line (present
// for every part of a multi-part encode) and consumes it if found, without
// disturbing binary data that happens to start the same way.
func (d *Decoder) discardPartHeader() error {
	peek, err := d.r.Peek(7)
	if err != nil {
		// Fewer than 7 bytes left before EOF; nothing more to discard.
		return nil
	}
	if string(peek) != "=ypart " {
		return nil
	}
	line, err := d.r.ReadString('\n')
	if err != nil {
		return err
	}
	parseYPartLine(line, &d.meta)
	return nil
}

// Metadata returns the header fields parsed by DiscardHeader. Begin/End are
// only meaningful after DiscardHeader returns.
func (d *Decoder) Metadata() Metadata { return d.meta }

// Read decodes into p, returning io.EOF once the =yend line has been
// consumed. The trailing =yend line itself is parsed into Metadata as part
// of returning EOF, so Metadata().ExpectedCRC is only valid once Read has
// returned io.EOF at least once.
func (d *Decoder) Read(p []byte) (int, error) {
	if d.done {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) {
		b, err := d.r.ReadByte()
		if err != nil {
			d.crc.Write(p[:n])
			return n, err
		}

		if b == '=' && !d.escaped {
			peek, perr := d.r.Peek(4)
			if perr == nil && string(peek) == "yend" {
				d.done = true
				d.consumeFooter()
				d.crc.Write(p[:n])
				return n, io.EOF
			}
			d.escaped = true
			continue
		}

		if (b == '\r' || b == '\n') && !d.escaped {
			continue
		}

		var decoded byte
		if d.escaped {
			decoded = b - 64 - 42
			d.escaped = false
		} else {
			decoded = b - 42
		}
		p[n] = decoded
		n++
	}

	d.crc.Write(p[:n])
	return n, nil
}

func (d *Decoder) consumeFooter() {
	line, _ := d.r.ReadString('\n')
	parseYEndLine("=yend"+line, &d.meta)
}

// Verify compares the running CRC32 of everything decoded so far against
// the checksum carried by =yend/=ypart. It returns ok=false with no error
// when the part carried no checksum at all, since not every producer emits
// one; callers decide via config whether that absence is itself an error.
func (d *Decoder) Verify() (ok bool, err error) {
	expected, present := d.meta.ExpectedCRC()
	if !present {
		return false, nil
	}
	actual := d.crc.Sum32()
	if actual != expected {
		return false, fmt.Errorf("yenc: crc32 mismatch: expected %08x, got %08x", expected, actual)
	}
	return true, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
