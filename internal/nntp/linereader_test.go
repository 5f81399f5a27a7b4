package nntp

import (
	"strings"
	"testing"
)

func TestLineReader_SplitsOnCRLF(t *testing.T) {
	t.Parallel()

	lr := newLineReader(strings.NewReader("first line\r\nsecond line\r\n"), nil)

	line, err := lr.readLine()
	if err != nil {
		t.Fatalf("readLine: %v", err)
	}
	if string(line) != "first line" {
		t.Fatalf("expected %q, got %q", "first line", line)
	}

	line, err = lr.readLine()
	if err != nil {
		t.Fatalf("readLine: %v", err)
	}
	if string(line) != "second line" {
		t.Fatalf("expected %q, got %q", "second line", line)
	}
}

func TestLineReader_HandlesBareLFWithoutCR(t *testing.T) {
	t.Parallel()

	lr := newLineReader(strings.NewReader("only lf\n"), nil)
	line, err := lr.readLine()
	if err != nil {
		t.Fatalf("readLine: %v", err)
	}
	if string(line) != "only lf" {
		t.Fatalf("expected %q, got %q", "only lf", line)
	}
}

func TestLineReader_PassesBinaryBytesThroughUnchanged(t *testing.T) {
	t.Parallel()

	payload := string([]byte{0x00, 0xFF, 0x80, '='})
	lr := newLineReader(strings.NewReader(payload+"\r\n"), nil)

	line, err := lr.readLine()
	if err != nil {
		t.Fatalf("readLine: %v", err)
	}
	if string(line) != payload {
		t.Fatalf("expected binary payload untouched, got %v", []byte(line))
	}
}

func TestLineReader_EOFOnEmptyStream(t *testing.T) {
	t.Parallel()

	lr := newLineReader(strings.NewReader(""), nil)
	if _, err := lr.readLine(); err == nil {
		t.Fatal("expected an error (EOF) reading from an empty stream")
	}
}

func TestLineReader_ResetWatermark_ClearsCounters(t *testing.T) {
	t.Parallel()

	lr := newLineReader(strings.NewReader("x\r\n"), nil)
	lr.bytesSeen = watermark
	lr.warned = true

	lr.resetWatermark()

	if lr.bytesSeen != 0 || lr.warned {
		t.Fatalf("expected counters cleared, got bytesSeen=%d warned=%v", lr.bytesSeen, lr.warned)
	}
}
