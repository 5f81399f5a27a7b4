package nntp

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/datallboy/gonzb/internal/logger"
)

// connState tracks where a single Conn sits in the NNTP session lifecycle.
// Transitions only ever move forward except Ready<->Streaming, which toggles
// once per command; Broken and Closed are absorbing.
type connState int

const (
	stateIdle connState = iota
	stateAwaitingGreeting
	stateAuthenticating
	stateReady
	stateStreaming
	stateBroken
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAwaitingGreeting:
		return "awaiting-greeting"
	case stateAuthenticating:
		return "authenticating"
	case stateReady:
		return "ready"
	case stateStreaming:
		return "streaming"
	case stateBroken:
		return "broken"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// maxDesyncEvents bounds how many times a Conn will tolerate an unparseable
// status line inside a multi-line response before it gives up and marks
// itself Broken. A single stray line is recoverable (treated as body data);
// repeated ones mean the stream truly desynced.
const maxDesyncEvents = 3

// Conn is a single authenticated connection to one NNTP provider. It is not
// safe for concurrent use: the owning Pool guarantees one command is
// outstanding on a Conn at a time.
type Conn struct {
	netConn net.Conn
	lr      *lineReader
	w       io.Writer
	log     *logger.Logger

	state        connState
	desyncEvents int

	articleTimeout time.Duration
}

// dial opens a Transport, reads the greeting, and authenticates if
// credentials are supplied. The returned Conn is in stateReady on success,
// stateBroken (with the returned error also carrying the reason) otherwise.
func dial(ctx context.Context, t Transport, username, password string, articleTimeout time.Duration, log *logger.Logger) (*Conn, error) {
	nc, err := t.Dial(ctx)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	c := &Conn{
		netConn:        nc,
		lr:             newLineReader(nc, log),
		w:              nc,
		log:            log,
		state:          stateAwaitingGreeting,
		articleTimeout: articleTimeout,
	}
	if c.articleTimeout <= 0 {
		c.articleTimeout = 15 * time.Second
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(deadline)
	}

	code, msg, err := c.readStatus()
	if err != nil {
		nc.Close()
		return nil, err
	}
	if code != 200 && code != 201 {
		nc.Close()
		c.state = stateBroken
		return nil, &ProtocolError{Code: code, Msg: msg}
	}

	if username != "" {
		c.state = stateAuthenticating
		if err := c.authenticate(username, password); err != nil {
			nc.Close()
			c.state = stateBroken
			return nil, err
		}
	}

	c.state = stateReady
	return c, nil
}

func (c *Conn) authenticate(username, password string) error {
	code, msg, err := c.command("AUTHINFO USER " + username)
	if err != nil {
		return err
	}
	if code == 281 {
		return nil
	}
	if code != 381 {
		return &AuthError{Code: code, Msg: msg}
	}

	code, msg, err = c.command("AUTHINFO PASS " + password)
	if err != nil {
		return err
	}
	if code != 281 {
		return &AuthError{Code: code, Msg: msg}
	}
	return nil
}

// command writes a single command line and reads back a single status line.
// It is for commands that never produce a multi-line body (AUTHINFO, GROUP,
// QUIT).
func (c *Conn) command(line string) (code int, msg string, err error) {
	if c.state == stateStreaming {
		return 0, "", ErrConnBusy
	}
	if c.state == stateBroken || c.state == stateClosed {
		return 0, "", &ProtocolError{Msg: "connection not usable: " + c.state.String()}
	}

	c.resetDeadline(c.articleTimeout)
	if _, err := io.WriteString(c.w, line+"\r\n"); err != nil {
		c.state = stateBroken
		return 0, "", &TransportError{Op: "write", Err: err}
	}

	return c.readStatus()
}

// readStatus reads exactly one line and parses it as "CODE text". A
// malformed line is a ProtocolError and marks the connection Broken; there
// is no recovery path for a bare command response (recovery only applies
// inside multi-line bodies, see readBodyLine).
func (c *Conn) readStatus() (code int, msg string, err error) {
	line, err := c.lr.readLine()
	if err != nil {
		c.state = stateBroken
		if isTimeout(err) {
			return 0, "", &TimeoutError{Op: "read status"}
		}
		return 0, "", &TransportError{Op: "read", Err: err}
	}

	code, msg, ok := parseStatusLine(line)
	if !ok {
		c.state = stateBroken
		return 0, "", &ProtocolError{Msg: "malformed status line: " + string(line)}
	}
	return code, msg, nil
}

// readStatusOrBody reads one line and tries to parse it as a status line.
// When a multi-line response is expected (BODY/ARTICLE) a provider
// occasionally skips the status line entirely, so per spec.md §4.2's
// recovery policy an unparseable line here is not fatal: it is logged as a
// warning and handed back as firstBodyLine so the caller can treat it as the
// first line of the body instead of failing the command. command() has no
// such recovery since it never expects a body to follow its status line.
func (c *Conn) readStatusOrBody() (code int, msg string, firstBodyLine []byte, err error) {
	line, err := c.lr.readLine()
	if err != nil {
		c.state = stateBroken
		if isTimeout(err) {
			return 0, "", nil, &TimeoutError{Op: "read status"}
		}
		return 0, "", nil, &TransportError{Op: "read", Err: err}
	}

	code, msg, ok := parseStatusLine(line)
	if ok {
		return code, msg, nil, nil
	}

	if c.log != nil {
		c.log.Warn("nntp: missed status line on multi-line response, treating as first body line: %q", line)
	}
	return 0, "", line, nil
}

// stripBodyDotStuffing applies the same dot-unstuffing/terminator rules as
// readBodyLine to a line obtained some other way (the recovery path in
// GetArticleStream reads a line before it knows whether a body even
// followed a status line).
func stripBodyDotStuffing(line []byte) (content []byte, terminator bool) {
	if len(line) == 1 && line[0] == '.' {
		return nil, true
	}
	if len(line) > 0 && line[0] == '.' {
		return line[1:], false
	}
	return line, false
}

func parseStatusLine(line []byte) (code int, msg string, ok bool) {
	s := string(line)
	if len(s) < 3 {
		return 0, "", false
	}
	sp := strings.IndexByte(s, ' ')
	codeStr := s
	if sp >= 0 {
		codeStr = s[:sp]
		msg = strings.TrimSpace(s[sp+1:])
	}
	n, err := strconv.Atoi(codeStr)
	if err != nil || n < 100 || n > 599 {
		return 0, "", false
	}
	return n, msg, true
}

// GetBody fetches an article body by message-id and returns it fully
// buffered, with dot-stuffing already reversed. Use GetArticleStream for
// large bodies where buffering the whole thing is wasteful.
func (c *Conn) GetBody(messageID string) ([]byte, error) {
	r, err := c.GetArticleStream(messageID)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetArticleStream issues BODY <message-id> and returns a lazy, un-dot-stuffed
// reader over the multi-line response. The reader must be closed (or read to
// EOF and closed) before another command is issued on this Conn; Close
// discards any unread tail so the connection can be reused.
func (c *Conn) GetArticleStream(messageID string) (io.ReadCloser, error) {
	if c.state == stateStreaming {
		return nil, ErrConnBusy
	}
	if c.state != stateReady {
		return nil, &ProtocolError{Msg: "connection not ready: " + c.state.String()}
	}

	c.resetDeadline(c.articleTimeout)
	if _, err := io.WriteString(c.w, "BODY <"+messageID+">\r\n"); err != nil {
		c.state = stateBroken
		return nil, &TransportError{Op: "write", Err: err}
	}

	code, msg, firstBodyLine, err := c.readStatusOrBody()
	if err != nil {
		return nil, err
	}

	if firstBodyLine != nil {
		// Recovered: the BODY status line never arrived, so what we just
		// read is the first line of the body itself.
		c.state = stateStreaming
		c.lr.resetWatermark()
		bs := &bodyStream{c: c}
		content, terminator := stripBodyDotStuffing(firstBodyLine)
		if terminator {
			bs.eof = true
			c.state = stateReady
			return bs, nil
		}
		bs.buf.Write(content)
		bs.buf.WriteByte('\n')
		return bs, nil
	}

	switch code {
	case 222:
		// body follows
	case 430, 423, 412:
		return nil, ErrArticleNotFound
	default:
		c.state = stateBroken
		return nil, &ProtocolError{Code: code, Msg: msg}
	}

	c.state = stateStreaming
	c.lr.resetWatermark()
	return &bodyStream{c: c}, nil
}

// resetDeadline pushes the network deadline forward; it is called before
// every write and is implicitly refreshed on every line read inside
// bodyStream so a slow-but-alive provider never trips the timeout mid-body.
func (c *Conn) resetDeadline(d time.Duration) {
	if d <= 0 {
		d = c.articleTimeout
	}
	_ = c.netConn.SetDeadline(time.Now().Add(d))
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// Close tears down the underlying transport. Safe to call more than once.
func (c *Conn) Close() error {
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed
	return c.netConn.Close()
}

// Quit sends QUIT and closes the connection. Errors from the write are
// ignored: the socket is being torn down regardless.
func (c *Conn) Quit() error {
	if c.state != stateClosed && c.state != stateBroken {
		c.resetDeadline(5 * time.Second)
		_, _ = io.WriteString(c.w, "QUIT\r\n")
		_, _, _ = c.readStatus()
	}
	return c.Close()
}

// Broken reports whether this connection has entered an unusable state and
// should be discarded by the Pool rather than returned to the idle set.
func (c *Conn) Broken() bool {
	return c.state == stateBroken || c.state == stateClosed
}

// bodyStream satisfies reads from the dot-terminated multi-line BODY
// response, un-stuffing leading dots and detecting the line containing just
// "." as end of stream. Grounded on the same incremental-buffer pattern as
// a classic Go NNTP client body reader, adapted to gonzb's lineReader and to
// count desync events instead of failing outright on the first bad line.
type bodyStream struct {
	c   *Conn
	eof bool
	buf bytes.Buffer
}

func (b *bodyStream) Read(p []byte) (int, error) {
	if b.eof {
		return 0, io.EOF
	}

	for b.buf.Len() == 0 {
		line, err := b.c.readBodyLine()
		if err != nil {
			b.eof = true
			b.c.state = stateBroken
			return 0, err
		}
		if line == nil {
			// terminator line, ".", seen
			b.eof = true
			b.c.state = stateReady
			return 0, io.EOF
		}
		b.buf.Write(line)
		b.buf.WriteByte('\n')
	}

	return b.buf.Read(p)
}

// readBodyLine returns one un-dot-stuffed line of body content, or nil when
// the terminator "." line is seen. It refreshes the read deadline on every
// line so a slow transfer of a large segment isn't penalized by a timeout
// sized for a single round trip.
//
// Recovery policy: a line that looks like an out-of-band status code (e.g. a
// provider emitting "423 No such article" mid-stream instead of terminating
// with a bare "."), is not immediately fatal. It is retained as if it were
// body data and counted against desyncEvents; only once a connection racks up
// more than maxDesyncEvents such lines across its lifetime is it marked
// Broken, on the theory that an occasional stray line is a flaky provider
// quirk but a run of them means the stream has truly lost sync.
func (c *Conn) readBodyLine() ([]byte, error) {
	c.resetDeadline(c.articleTimeout)
	line, err := c.lr.readLine()
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Op: "read body"}
		}
		return nil, &TransportError{Op: "read", Err: err}
	}

	if len(line) == 1 && line[0] == '.' {
		return nil, nil
	}
	if len(line) == 0 {
		// A genuinely empty line inside a body is legal (blank line in the
		// article); only a single "." is the terminator.
		return line, nil
	}
	if line[0] == '.' {
		// dot-stuffed: a real leading dot in the payload arrives as "..".
		return line[1:], nil
	}

	if looksLikeStatusLine(line) {
		c.desyncEvents++
		if c.log != nil {
			c.log.Warn("nntp: stray status-like line inside body (desync event %d/%d): %q",
				c.desyncEvents, maxDesyncEvents, line)
		}
		if c.desyncEvents > maxDesyncEvents {
			return nil, &ProtocolError{Msg: "too many desynced lines inside body: " + string(line)}
		}
	}
	return line, nil
}

// looksLikeStatusLine reports whether line has the shape "ddd " or "ddd\z",
// i.e. a three-digit NNTP response code. It is a heuristic used only to
// flag possible desync, never to actually parse the line as a command reply.
func looksLikeStatusLine(line []byte) bool {
	if len(line) < 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if line[i] < '0' || line[i] > '9' {
			return false
		}
	}
	return len(line) == 3 || line[3] == ' '
}

// Close discards any unread tail of the body stream so the connection
// returns to stateReady and can be reused by the Pool. It is always safe
// to call, including after the stream already hit EOF.
func (b *bodyStream) Close() error {
	if b.eof {
		return nil
	}
	for {
		line, err := b.c.readBodyLine()
		if err != nil {
			b.c.state = stateBroken
			return err
		}
		if line == nil {
			b.eof = true
			b.c.state = stateReady
			return nil
		}
	}
}
