package main

import (
	"testing"

	"github.com/hatstand/subghz/config"
	"github.com/hatstand/subghz/protocol"
	"go.uber.org/zap"

	. "github.com/smartystreets/goconvey/convey"
)

func TestWiring(t *testing.T) {
	Convey("The hopper uses the receiver threshold", t, func() {
		cfg := config.Default()
		cfg.Receiver.RSSIThreshold = -70
		opts := hopperOptions(cfg, zap.NewNop())
		So(opts.Threshold, ShouldEqual, -70)
		So(opts.Frequencies, ShouldResemble, cfg.Hopper.Frequencies)
		So(opts.HoldTicks, ShouldEqual, cfg.Hopper.HoldTicks)
	})

	Convey("Ignore sets expand to decoder names", t, func() {
		So(ignoreList([]string{"starline", "Princeton"}), ShouldResemble,
			append(append([]string{}, protocol.IgnoreStarLine...), "Princeton"))
	})
}
