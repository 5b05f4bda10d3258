package domainset

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAccepts(t *testing.T) {
	Convey("Given a set accepting tempy.email and example.com", t, func() {
		s := New([]string{"Tempy.Email", "example.com"})

		Convey("an exact match is accepted", func() {
			So(s.Accepts("tempy.email"), ShouldBeTrue)
			So(s.Accepts("TEMPY.EMAIL"), ShouldBeTrue)
		})

		Convey("a proper dot-bounded subdomain is accepted", func() {
			So(s.Accepts("abc.tempy.email"), ShouldBeTrue)
			So(s.Accepts("a.b.tempy.email"), ShouldBeTrue)
		})

		Convey("a suffix without a dot boundary is rejected", func() {
			So(s.Accepts("eviltempy.email"), ShouldBeFalse)
		})

		Convey("an unrelated domain is rejected", func() {
			So(s.Accepts("other.org"), ShouldBeFalse)
		})

		Convey("the empty string is rejected", func() {
			So(s.Accepts(""), ShouldBeFalse)
		})
	})
}

func TestEmpty(t *testing.T) {
	Convey("An empty set reports Empty", t, func() {
		So(New(nil).Empty(), ShouldBeTrue)
		So(New([]string{"x.com"}).Empty(), ShouldBeFalse)
	})
}
