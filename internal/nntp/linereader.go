package nntp

import (
	"bufio"
	"io"

	"github.com/datallboy/gonzb/internal/logger"
)

// watermark is the threshold above which lineReader logs a diagnostic about
// an unusually large buffered-but-undelimited read. It never drops bytes;
// this is purely a logging aid for a misbehaving or desynced server.
const watermark = 1 << 20 // 1 MiB

// lineReader splits an inbound byte stream on CRLF, coalescing partial reads
// into complete lines and retaining a trailing partial line across calls.
// Bytes are treated as opaque (ISO-8859-1-safe): no UTF-8 validation is ever
// performed, so binary yEnc payload bytes pass through a line unchanged.
//
// lineReader is single-producer, single-consumer: exactly one Conn reads
// from one underlying transport through one lineReader.
type lineReader struct {
	r         *bufio.Reader
	log       *logger.Logger
	warned    bool
	bytesSeen int
}

func newLineReader(r io.Reader, log *logger.Logger) *lineReader {
	return &lineReader{
		r:   bufio.NewReaderSize(r, 4096),
		log: log,
	}
}

// readLine returns the next CRLF-delimited line with the terminator
// stripped. It blocks until a full line is available, the deadline set on
// the underlying transport expires, or the stream ends.
func (lr *lineReader) readLine() ([]byte, error) {
	line, err := lr.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	lr.bytesSeen += len(line)
	if lr.bytesSeen >= watermark && !lr.warned {
		lr.warned = true
		if lr.log != nil {
			lr.log.Warn("nntp: response buffer crossed %d bytes without resetting; continuing", watermark)
		}
	}
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, nil
}

// resetWatermark clears the diagnostic counter between commands so one very
// large multi-line body doesn't re-warn on every subsequent line.
func (lr *lineReader) resetWatermark() {
	lr.bytesSeen = 0
	lr.warned = false
}
