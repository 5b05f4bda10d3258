package smtp

import (
	"bufio"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestReplyBytes(t *testing.T) {
	Convey("Testing Reply.Bytes()", t, func() {

		Convey("a single-line reply uses a space separator", func() {
			r := reply(250, "2.0.0 OK")
			So(string(r.Bytes()), ShouldEqual, "250 2.0.0 OK\r\n")
		})

		Convey("a multi-line reply hyphenates all but the last line", func() {
			r := multiReply(250, "burngate", "SIZE 10485760", "STARTTLS")
			So(string(r.Bytes()), ShouldEqual, "250-burngate\r\n250-SIZE 10485760\r\n250 STARTTLS\r\n")
		})
	})
}

func TestSizeLimitedDotReader(t *testing.T) {
	Convey("Testing sizeLimitedDotReader", t, func() {

		Convey("reads an unstuffed body under the limit", func() {
			raw := "line one\r\n..dot-stuffed\r\n.\r\n"
			r := bufio.NewReader(strings.NewReader(raw))
			dr := newSizeLimitedDotReader(r, 1024)
			body, exceeded, err := dr.readAll()
			So(err, ShouldBeNil)
			So(exceeded, ShouldEqual, false)
			So(string(body), ShouldEqual, "line one\r\n.dot-stuffed\r\n")
		})

		Convey("flags a body exceeding the maximum but still drains it", func() {
			raw := "0123456789\r\n.\r\n"
			r := bufio.NewReader(strings.NewReader(raw))
			dr := newSizeLimitedDotReader(r, 4)
			body, exceeded, err := dr.readAll()
			So(err, ShouldBeNil)
			So(exceeded, ShouldEqual, true)
			So(len(body), ShouldEqual, 0)
		})
	})
}
