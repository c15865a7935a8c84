package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDeduper(t *testing.T) {
	Convey("Given a Redis-backed deduper", t, func() {
		mr := miniredis.RunT(t)
		ctx := context.Background()
		client, err := NewClient(ctx, Config{Addr: mr.Addr()})
		So(err, ShouldBeNil)
		Reset(func() { _ = client.Close() })

		d := NewDeduper(client, WithWindow(10*time.Minute), WithPrefix("test:"))

		Convey("When an alert key is recorded", func() {
			So(d.SeenAndRecord(ctx, "rezoning-watch|city:1"), ShouldBeFalse)

			Convey("Then repeats inside the window are suppressed", func() {
				So(d.SeenAndRecord(ctx, "rezoning-watch|city:1"), ShouldBeTrue)
				So(mr.Exists("test:rezoning-watch|city:1"), ShouldBeTrue)
				So(mr.TTL("test:rezoning-watch|city:1"), ShouldEqual, 10*time.Minute)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then the key is released once the window passes", func() {
				mr.FastForward(11 * time.Minute)
				So(d.SeenAndRecord(ctx, "rezoning-watch|city:1"), ShouldBeFalse)
			})

			Convey("Then unrecording lets the alert through again", func() {
				d.Unrecord(ctx, "rezoning-watch|city:1")
				So(d.SeenAndRecord(ctx, "rezoning-watch|city:1"), ShouldBeFalse)
			})
		})

		Convey("When Redis goes away", func() {
			mr.Close()

			Convey("Then alerts are not suppressed", func() {
				So(d.SeenAndRecord(ctx, "k"), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "k"), ShouldBeFalse)
				So(func() { d.Unrecord(ctx, "k") }, ShouldNotPanic)
				So(d.Size(), ShouldEqual, 0)
			})
		})
	})
}

func TestNewClient(t *testing.T) {
	Convey("Given bad connection settings", t, func() {
		_, err := NewClient(context.Background(), Config{})
		So(errors.Is(err, ErrAddrRequired), ShouldBeTrue)

		_, err = NewClient(context.Background(), Config{Addr: "127.0.0.1:1"})
		So(err, ShouldNotBeNil)
	})
}
