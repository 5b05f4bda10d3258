package smtp

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/TempyEmail/burngate/domainset"
	"github.com/TempyEmail/burngate/metrics"
	"github.com/TempyEmail/burngate/oracle"
	"github.com/TempyEmail/burngate/relay"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeBackend accepts one connection, answers every command with "250 OK"
// (and DATA with "354 Go"), and is used to give the relay Client a live peer
// without reaching a real MTA. Grounded on relay/client_test.go's helper of
// the same shape.
func fakeBackend(t *testing.T, ln net.Listener) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	conn.Write([]byte("220 fake.backend ESMTP\r\n"))
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		switch {
		case strings.HasPrefix(strings.ToUpper(line), "DATA"):
			conn.Write([]byte("354 Go\r\n"))
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
			}
			conn.Write([]byte("250 2.0.0 Accepted\r\n"))
		case strings.HasPrefix(strings.ToUpper(line), "QUIT"):
			conn.Write([]byte("221 Bye\r\n"))
			return
		default:
			conn.Write([]byte("250 OK\r\n"))
		}
	}
}

func testEngine(t *testing.T, backendAddr string) *Engine {
	mem := oracle.NewMemory([]string{"known@tempy.email"})
	client := relay.NewClient(backendAddr, "burngate", time.Second)
	cfg := Config{
		ServerName:      "burngate",
		AcceptedDomains: domainset.New([]string{"tempy.email"}),
		MaxMessageSize:  1024,
		ConnTimeout:     2 * time.Second,
		TLSAvailable:    false,
	}
	nullLogger, _ := test.NewNullLogger()
	return NewEngine(cfg, mem, client, nil, metrics.New(), nullLogger)
}

func startBackend(t *testing.T) (addr string, done chan struct{}) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done = make(chan struct{})
	go func() {
		fakeBackend(t, ln)
		close(done)
	}()
	return ln.Addr().String(), done
}

func runSession(e *Engine, clientScript string) string {
	client, server := net.Pipe()
	done := make(chan struct{})
	var out strings.Builder

	go func() {
		r := bufio.NewReader(client)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				break
			}
			out.WriteString(line)
		}
		close(done)
	}()

	go func() {
		client.Write([]byte(clientScript))
	}()

	go e.Run(server, "127.0.0.1:1234")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	client.Close()
	server.Close()
	return out.String()
}

func TestEngineAcceptedTransaction(t *testing.T) {
	Convey("Testing a fully accepted transaction", t, func() {
		addr, backendDone := startBackend(t)
		e := testEngine(t, addr)

		script := "EHLO client.example\r\n" +
			"MAIL FROM:<sender@example.com>\r\n" +
			"RCPT TO:<known@tempy.email>\r\n" +
			"DATA\r\n" +
			"Subject: hi\r\n.\r\n" +
			"QUIT\r\n"

		out := runSession(e, script)
		<-backendDone

		So(out, ShouldContainSubstring, "220 ")
		So(out, ShouldContainSubstring, "250")
		So(out, ShouldContainSubstring, "2.1.5 OK")
		So(out, ShouldContainSubstring, "354")
		So(out, ShouldContainSubstring, "2.0.0 Message accepted")
		So(out, ShouldContainSubstring, "221")
	})
}

func TestEngineRejectsUnknownDomain(t *testing.T) {
	Convey("Testing RCPT TO to a non-accepted domain", t, func() {
		addr, _ := startBackend(t)
		e := testEngine(t, addr)

		script := "EHLO client.example\r\n" +
			"MAIL FROM:<sender@example.com>\r\n" +
			"RCPT TO:<someone@other.example>\r\n" +
			"QUIT\r\n"

		out := runSession(e, script)

		So(out, ShouldContainSubstring, "550")
	})
}

func TestEngineRejectsUnknownUser(t *testing.T) {
	Convey("Testing RCPT TO an accepted domain but unknown mailbox", t, func() {
		addr, _ := startBackend(t)
		e := testEngine(t, addr)

		script := "EHLO client.example\r\n" +
			"MAIL FROM:<sender@example.com>\r\n" +
			"RCPT TO:<nobody@tempy.email>\r\n" +
			"QUIT\r\n"

		out := runSession(e, script)
		So(out, ShouldContainSubstring, "550 5.1.1 User unknown")
	})
}

func TestEngineBadSequence(t *testing.T) {
	Convey("Testing commands issued out of order", t, func() {
		addr, _ := startBackend(t)
		e := testEngine(t, addr)

		script := "RCPT TO:<known@tempy.email>\r\n" +
			"QUIT\r\n"

		out := runSession(e, script)
		So(out, ShouldContainSubstring, "503")
	})
}

func TestEngineRSET(t *testing.T) {
	Convey("Testing RSET clears envelope state", t, func() {
		addr, _ := startBackend(t)
		e := testEngine(t, addr)

		script := "EHLO client.example\r\n" +
			"MAIL FROM:<sender@example.com>\r\n" +
			"RSET\r\n" +
			"RCPT TO:<known@tempy.email>\r\n" +
			"QUIT\r\n"

		out := runSession(e, script)
		// RCPT immediately after RSET with no new MAIL FROM must be
		// refused for bad sequencing, not processed.
		So(out, ShouldContainSubstring, "503")
	})
}

func TestEngineUnknownCommand(t *testing.T) {
	Convey("Testing an unrecognized verb", t, func() {
		addr, _ := startBackend(t)
		e := testEngine(t, addr)

		out := runSession(e, "BOGUS\r\nQUIT\r\n")
		So(out, ShouldContainSubstring, "502")
	})
}
