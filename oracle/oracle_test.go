package oracle

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseMode(t *testing.T) {
	Convey("ParseMode accepts key/set/both case-insensitively", t, func() {
		m, err := ParseMode("Key")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, ModeKey)

		m, err = ParseMode("SET")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, ModeSet)

		m, err = ParseMode("both")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, ModeBoth)
	})

	Convey("ParseMode rejects anything else", t, func() {
		_, err := ParseMode("nonsense")
		So(err, ShouldNotBeNil)
	})
}

func TestMemoryLookup(t *testing.T) {
	Convey("Given a Memory oracle with one known address", t, func() {
		m := NewMemory([]string{"test@example.com"})

		Convey("a known address Exists", func() {
			So(m.Lookup(context.Background(), "test@example.com"), ShouldEqual, Exists)
		})

		Convey("an unknown address is NotFound", func() {
			So(m.Lookup(context.Background(), "nobody@example.com"), ShouldEqual, NotFound)
		})

		Convey("Add makes a new address Exist", func() {
			m.Add("new@example.com")
			So(m.Lookup(context.Background(), "new@example.com"), ShouldEqual, Exists)
		})
	})
}

func TestKeyForAddress(t *testing.T) {
	Convey("keyForAddress substitutes the placeholder", t, func() {
		So(keyForAddress("mb:{address}", "a@b.com"), ShouldEqual, "mb:a@b.com")
	})
}
