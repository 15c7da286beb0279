package keystore

import (
	"strings"
	"testing"
	"time"

	"github.com/hatstand/subghz/protocol"
	"github.com/hatstand/subghz/pulse"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStore(t *testing.T) {
	received := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	Convey("Keys are saved and listed", t, func() {
		s, err := New(t.TempDir(), nil)
		So(err, ShouldBeNil)

		name, err := s.Save(&protocol.Item{
			Protocol:  "Princeton",
			Payload:   []byte{0x1a, 0x2b, 0x3c},
			Bits:      24,
			Frequency: 433920000,
			Preset:    "AM650",
			Time:      received,
		}, "gate")
		So(err, ShouldBeNil)
		So(name, ShouldEqual, "gate")

		item, err := s.Load("gate")
		So(err, ShouldBeNil)
		So(item.Protocol, ShouldEqual, "Princeton")
		So(item.Payload, ShouldResemble, []byte{0x1a, 0x2b, 0x3c})
		So(item.Frequency, ShouldEqual, 433920000)
		So(item.Time.Equal(received), ShouldBeTrue)

		names, err := s.List()
		So(err, ShouldBeNil)
		So(names, ShouldResemble, []string{"gate"})

		So(s.Delete("gate"), ShouldBeNil)
		So(s.Delete("gate"), ShouldEqual, ErrNotFound)
		_, err = s.Load("gate")
		So(err, ShouldEqual, ErrNotFound)
	})

	Convey("Raw captures keep their timings", t, func() {
		s, _ := New(t.TempDir(), nil)
		timings := []pulse.LevelDuration{pulse.New(true, 300), pulse.New(false, 900)}
		name, err := s.Save(&protocol.Item{Protocol: protocol.RawName, Timings: timings}, "")
		So(err, ShouldBeNil)
		So(strings.Count(name, "_"), ShouldEqual, 2)

		item, err := s.Load(name)
		So(err, ShouldBeNil)
		So(item.Timings, ShouldResemble, timings)
	})

	Convey("Names can't escape the directory", t, func() {
		s, _ := New(t.TempDir(), nil)
		_, err := s.Save(&protocol.Item{}, "../evil")
		So(err, ShouldEqual, ErrBadName)
		_, err = s.Load("..")
		So(err, ShouldEqual, ErrBadName)
	})
}
