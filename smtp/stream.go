package smtp

import (
	"bufio"
	"errors"
	"net"
	"time"
)

// ErrLineTooLong is returned by ReadLine when a command line exceeds
// maxLineLen octets before a line terminator is found, per spec.md §4.1.
var ErrLineTooLong = errors.New("smtp: line too long")

// maxLineLen is the 1024-octet command-line cap from spec.md §4.1. Sender
// and recipient paths may be longer per RFC 5321, but this filter caps them
// here regardless.
const maxLineLen = 1024

// Stream is the capability set the Session Engine needs from a connection:
// buffered line reads with a deadline, raw writes with a deadline, and a way
// to detect pending buffered bytes before a STARTTLS handoff. Writes are not
// buffered, so there is no separate flush step.
//
// spec.md §9 asks for this to be realised as "a runtime polymorphic handle
// or a generic parameterisation, not two near-duplicate state machines". A
// single concrete type wrapping net.Conn achieves exactly that: net.Conn is
// already satisfied by both a plaintext socket and a post-handshake
// *tls.Conn, so one Stream implementation drives both.
type Stream struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewStream wraps conn in a fresh Stream with an empty read buffer.
func NewStream(conn net.Conn) *Stream {
	return &Stream{conn: conn, r: bufio.NewReaderSize(conn, maxLineLen+2)}
}

// Conn returns the underlying net.Conn, for handoff to the TLS Upgrader or
// for reading the peer address.
func (s *Stream) Conn() net.Conn {
	return s.conn
}

// Buffered returns the number of unread bytes sitting in the line buffer.
// The Session Engine must see this at zero before allowing a STARTTLS
// handoff, per spec.md §4.4/§9.
func (s *Stream) Buffered() int {
	return s.r.Buffered()
}

// Replace installs conn as the new underlying connection with a fresh,
// empty read buffer. Bytes buffered on the old stream are never carried
// over, per spec.md §9 ("Do not rebuffer post-TLS bytes into the pre-TLS
// buffer"). The Session Engine does not call Replace after STARTTLS; it
// wraps the upgraded connection in a new Stream via NewStream instead.
func (s *Stream) Replace(conn net.Conn) {
	s.conn = conn
	s.r = bufio.NewReaderSize(conn, maxLineLen+2)
}

// ReadLine reads one CRLF-terminated command line (a bare LF is tolerated),
// bounded by maxLineLen octets and by deadline. If no terminator is found
// within the cap, it keeps discarding bytes up to the next '\n' (so the
// stream resynchronises to the next command) and returns ErrLineTooLong;
// the caller should reply 500 and continue. Grounded on the teacher's
// MtaProtocol.SkipTillNewline (smtp/protocol.go), generalized to the
// 1024-octet cap from spec.md §4.1 instead of the RFC's 512/1000.
func (s *Stream) ReadLine(deadline time.Time) (string, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	buf := make([]byte, 0, 128)
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\n' {
			line := trimCRLF(string(buf) + "\n")
			if len(line) > maxLineLen {
				return "", ErrLineTooLong
			}
			return line, nil
		}
		buf = append(buf, b)
		// One extra octet leaves room for the CR of a CRLF terminator.
		if len(buf) > maxLineLen+1 {
			if err := s.skipToNewline(); err != nil {
				return "", err
			}
			return "", ErrLineTooLong
		}
	}
}

// skipToNewline discards bytes until (and including) the next '\n', so an
// oversize line does not desynchronise subsequent command parsing.
func (s *Stream) skipToNewline() error {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		if b == '\n' {
			return nil
		}
	}
}

// Write writes p to the connection with the given deadline.
func (s *Stream) Write(p []byte, deadline time.Time) error {
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err := s.conn.Write(p)
	return err
}

// BufReader exposes the underlying *bufio.Reader for components (like the
// dot-unstuffing DATA reader) that need to read raw bytes rather than
// CRLF-delimited lines.
func (s *Stream) BufReader() *bufio.Reader {
	return s.r
}

func trimCRLF(line string) string {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
	}
	if n > 0 && line[n-1] == '\r' {
		n--
	}
	return line[:n]
}
