// Package smtp implements the Session Engine from spec.md §4.1: the SMTP
// protocol state machine that drives one connection from greeting through
// QUIT (or an optional STARTTLS handoff and a second run on the upgraded
// stream).
//
// Grounded on the teacher's Server/conn split (gopistolet's smtp/smtp.go)
// generalized from its MTA/MSA two-mode design (which only varied EHLO
// extensions and added AUTH) into the filter-specific grammar in spec.md
// §4.1, and on its protocol.go for reply formatting and body reading.
package smtp

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TempyEmail/burngate/domainset"
	"github.com/TempyEmail/burngate/logging"
	"github.com/TempyEmail/burngate/metrics"
	"github.com/TempyEmail/burngate/oracle"
	"github.com/TempyEmail/burngate/relay"
	"github.com/TempyEmail/burngate/tlsupgrade"
)

// Phase is the Session's position in the SMTP transaction, per spec.md §3.
type Phase int

const (
	PhaseGreeting Phase = iota
	PhaseIdle
	PhaseHaveSender
	PhaseHaveRecipient
	PhaseData
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseGreeting:
		return "Greeting"
	case PhaseIdle:
		return "Idle"
	case PhaseHaveSender:
		return "HaveSender"
	case PhaseHaveRecipient:
		return "HaveRecipient"
	case PhaseData:
		return "Data"
	case PhaseClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Envelope holds one transaction's sender, recipients, and body, per
// spec.md §3. It is reset by RSET, by a successful or failed end-of-data,
// and by re-issuing MAIL FROM.
type Envelope struct {
	ReverseAddr string   // "" allowed: a bounce.
	HasSender   bool     // distinguishes "no MAIL yet" from "MAIL FROM:<>"
	Forward     []string // lowercased, deduplicated, in receipt order
	Body        []byte
}

func (e *Envelope) reset() {
	e.ReverseAddr = ""
	e.HasSender = false
	e.Forward = nil
	e.Body = nil
}

func (e *Envelope) addRecipient(addr string) {
	for _, existing := range e.Forward {
		if existing == addr {
			return
		}
	}
	e.Forward = append(e.Forward, addr)
}

// Config is the Session Engine's immutable, per-process configuration.
type Config struct {
	ServerName      string
	AcceptedDomains domainset.Set
	MaxMessageSize  int64
	ConnTimeout     time.Duration
	TLSAvailable    bool
}

// Engine runs sessions against a fixed set of collaborators: the Recipient
// Oracle, the Relay Client, the TLS Upgrader (nil if TLS is unavailable),
// shared metrics counters, and a logger.
type Engine struct {
	cfg      Config
	oracle   oracle.Oracle
	relay    *relay.Client
	upgrader *tlsupgrade.Upgrader
	metrics  *metrics.Counters
	logger   *logrus.Logger
}

// NewEngine builds an Engine. upgrader may be nil, in which case
// cfg.TLSAvailable must be false (STARTTLS is never advertised).
func NewEngine(cfg Config, o oracle.Oracle, r *relay.Client, upgrader *tlsupgrade.Upgrader, m *metrics.Counters, logger *logrus.Logger) *Engine {
	return &Engine{cfg: cfg, oracle: o, relay: r, upgrader: upgrader, metrics: m, logger: logger}
}

// Run drives one session over stream. It returns normally on QUIT, peer
// close, inactivity timeout, or a STARTTLS handoff completed internally;
// it never panics or propagates an I/O error to the caller — every failure
// is translated to an SMTP reply or a silent connection drop, per spec.md
// §4.1's contract.
func (e *Engine) Run(conn net.Conn, peer string) {
	defer conn.Close()
	e.metrics.IncConnections()
	log := logging.ForConn(e.logger, peer)

	stream := NewStream(conn)
	e.runOnStream(stream, peer, log, false)
}

// runOnStream drives the command loop over stream. tlsActive marks whether
// this run is already on an upgraded connection (so EHLO won't re-advertise
// STARTTLS and a repeat STARTTLS is refused).
func (e *Engine) runOnStream(stream *Stream, peer string, log *logrus.Entry, tlsActive bool) {
	sess := &session{
		engine:    e,
		stream:    stream,
		peer:      peer,
		log:       log,
		phase:     PhaseGreeting,
		tlsActive: tlsActive,
	}

	if !sess.greet() {
		return
	}
	sess.phase = PhaseIdle

	for {
		deadline := time.Now().Add(e.cfg.ConnTimeout)
		line, err := stream.ReadLine(deadline)
		if err != nil {
			if err == ErrLineTooLong {
				sess.send(reply(500, "5.5.2 Line too long"))
				continue
			}
			if isTimeout(err) {
				sess.send(reply(421, "4.4.2 Timeout"))
			}
			// Any other I/O error: drop silently, per spec.md §7.
			return
		}

		verb, rest := parseCommandLine(line)
		if sess.dispatch(verb, rest) || sess.phase == PhaseClosed {
			return
		}
		if sess.handoff != nil {
			// STARTTLS succeeded: re-run the whole engine on the
			// upgraded stream, starting again from Greeting.
			next := sess.handoff
			sess.handoff = nil
			e.runOnStream(next, peer, log, true)
			return
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// parseCommandLine splits a command line into its uppercased verb and the
// raw remainder, command matching being case-insensitive per spec.md §4.1
// and §9 (resolving the source's case-sensitivity note in favor of
// interoperability practice).
func parseCommandLine(line string) (verb, rest string) {
	line = strings.TrimSpace(line)
	i := strings.IndexByte(line, ' ')
	if i < 0 {
		return strings.ToUpper(line), ""
	}
	return strings.ToUpper(line[:i]), line[i+1:]
}

// session is one connection's mutable protocol state. Kept analogous to the
// teacher's conn struct (smtp/smtp.go), generalized to the full phase model
// and enriched with the envelope/oracle/relay wiring spec.md requires.
type session struct {
	engine    *Engine
	stream    *Stream
	peer      string
	log       *logrus.Entry
	phase     Phase
	tlsActive bool
	envelope  Envelope

	// handoff is set by handleSTARTTLS when the upgrade succeeds; the
	// caller (runOnStream) re-enters the engine on this new stream.
	handoff *Stream
}

func (s *session) send(r Reply) {
	deadline := time.Now().Add(s.engine.cfg.ConnTimeout)
	_ = s.stream.Write(r.Bytes(), deadline)
}

// greet emits the initial banner. Returns false if the write failed (caller
// should drop the connection).
func (s *session) greet() bool {
	deadline := time.Now().Add(s.engine.cfg.ConnTimeout)
	banner := reply(220, s.engine.cfg.ServerName+" ESMTP Ready")
	return s.stream.Write(banner.Bytes(), deadline) == nil
}

// dispatch handles one command line. It returns true when the session is
// over (QUIT processed, or an unrecoverable condition).
func (s *session) dispatch(verb, rest string) bool {
	switch verb {
	case "EHLO":
		s.handleEHLO(rest)
	case "HELO":
		s.handleHELO(rest)
	case "MAIL":
		s.handleMAIL(rest)
	case "RCPT":
		s.handleRCPT(rest)
	case "DATA":
		s.handleDATA()
	case "RSET":
		s.handleRSET()
	case "NOOP":
		s.send(reply(250, "2.0.0 OK"))
	case "QUIT":
		s.send(reply(221, "2.0.0 Bye"))
		return true
	case "VRFY":
		s.send(reply(252, "2.5.2 Cannot VRFY user"))
	case "STARTTLS":
		s.handleSTARTTLS()
	default:
		s.send(reply(502, "5.5.2 Command not recognized"))
	}
	return false
}

func (s *session) handleEHLO(rest string) {
	s.envelope.reset()
	s.phase = PhaseIdle

	lines := []string{s.engine.cfg.ServerName}
	lines = append(lines, "SIZE "+itoa64(s.engine.cfg.MaxMessageSize))
	lines = append(lines, "8BITMIME")
	if s.engine.cfg.TLSAvailable && !s.tlsActive {
		lines = append(lines, "STARTTLS")
	}
	lines = append(lines, "HELP")

	s.send(multiReply(250, lines...))
}

func (s *session) handleHELO(rest string) {
	s.envelope.reset()
	s.phase = PhaseIdle
	s.send(reply(250, s.engine.cfg.ServerName))
}

func (s *session) handleMAIL(rest string) {
	if s.phase != PhaseIdle {
		s.send(reply(503, "Bad sequence of commands"))
		return
	}

	addr, ok := extractPath(rest, "FROM:")
	if !ok {
		s.send(reply(501, "Malformed MAIL FROM"))
		return
	}

	s.envelope.reset()
	s.envelope.ReverseAddr = addr
	s.envelope.HasSender = true
	s.phase = PhaseHaveSender
	s.send(reply(250, "2.1.0 OK"))
}

func (s *session) handleRCPT(rest string) {
	if s.phase != PhaseHaveSender && s.phase != PhaseHaveRecipient {
		s.send(reply(503, "Bad sequence of commands"))
		return
	}

	addr, ok := extractPath(rest, "TO:")
	if !ok || addr == "" {
		s.send(reply(501, "Malformed RCPT TO"))
		return
	}

	domain := domainOf(addr)
	if domain == "" || !s.engine.cfg.AcceptedDomains.Accepts(domain) {
		s.send(reply(550, "5.1.2 Domain not accepted"))
		s.engine.metrics.IncRejected()
		s.log.WithField("tag", logging.TagMailRejected).Warn("domain not accepted")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.engine.cfg.ConnTimeout)
	defer cancel()

	switch s.engine.oracle.Lookup(ctx, addr) {
	case oracle.Exists:
		s.envelope.addRecipient(addr)
		s.phase = PhaseHaveRecipient
		s.send(reply(250, "2.1.5 OK"))
		s.engine.metrics.IncAccepted()
		s.log.WithField("tag", logging.TagRCPTAccepted).Info("recipient accepted")

	case oracle.NotFound:
		s.send(reply(550, "5.1.1 User unknown"))
		s.engine.metrics.IncRejected()
		s.log.WithField("tag", logging.TagMailRejected).Warn("user unknown")

	default: // oracle.Unavailable: fail closed.
		s.send(reply(451, "4.3.0 Temporary lookup failure"))
	}
}

func (s *session) handleDATA() {
	if s.phase != PhaseHaveRecipient {
		s.send(reply(503, "Bad sequence of commands"))
		return
	}

	s.send(reply(354, "Start mail input; end with <CRLF>.<CRLF>"))

	// The inactivity timer bounds each read operation, not each command: the
	// body transfer gets its own fresh deadline rather than inheriting
	// whatever remained from reading the DATA line itself.
	if err := s.stream.Conn().SetReadDeadline(time.Now().Add(s.engine.cfg.ConnTimeout)); err != nil {
		s.phase = PhaseClosed
		return
	}

	dr := newSizeLimitedDotReader(s.stream.BufReader(), s.engine.cfg.MaxMessageSize)
	body, exceeded, err := dr.readAll()
	if err != nil {
		if isTimeout(err) {
			s.send(reply(421, "4.4.2 Timeout"))
		}
		// Any other I/O error: stream closed before the terminator,
		// drop silently, per spec.md §7.
		s.phase = PhaseClosed
		return
	}

	if exceeded {
		s.send(reply(552, "5.3.4 Message too big"))
		s.envelope.reset()
		s.phase = PhaseIdle
		return
	}

	s.envelope.Body = body

	status := s.engine.relay.Relay(s.envelope.ReverseAddr, s.envelope.Forward, s.envelope.Body)
	switch status {
	case relay.Ok:
		s.send(reply(250, "2.0.0 Message accepted for delivery"))
		s.log.WithField("tag", logging.TagMailRelayed).Info("message relayed")
	default:
		s.send(reply(451, "4.3.0 Relay failed"))
		s.engine.metrics.IncRelayErrors()
		s.log.WithField("tag", logging.TagRelayError).Warn("relay failed")
	}

	s.envelope.reset()
	s.phase = PhaseIdle
}

func (s *session) handleRSET() {
	s.envelope.reset()
	s.phase = PhaseIdle
	s.send(reply(250, "2.0.0 OK"))
}

func (s *session) handleSTARTTLS() {
	if !s.engine.cfg.TLSAvailable || s.tlsActive {
		s.send(reply(502, "5.5.2 Command not recognized"))
		return
	}

	s.send(reply(220, "2.0.0 Ready to start TLS"))

	tlsConn, err := s.engine.upgrader.Upgrade(s.stream.Conn(), s.stream)
	if err != nil {
		// Buffered input or handshake failure: drop the connection
		// silently, per spec.md §4.4 — no SMTP response is possible.
		s.phase = PhaseClosed
		return
	}

	upgraded := NewStream(tlsConn)
	s.handoff = upgraded
}

func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
