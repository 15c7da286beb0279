package config

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "subghz.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("Defaults are valid", t, func() {
		cfg, err := Load("")
		So(err, ShouldBeNil)
		So(cfg.Receiver.Preset, ShouldEqual, "AM650")
		So(cfg.Tick().Milliseconds(), ShouldEqual, 100)
	})

	Convey("File values override defaults", t, func() {
		path := writeConfig(t, `
radio:
  region: eu
receiver:
  frequency: 868350000
  ignore: [starline]
hopper:
  enabled: true
  frequencies: [433920000, 868350000]
`)
		cfg, err := Load(path)
		So(err, ShouldBeNil)
		So(cfg.Radio.Region, ShouldEqual, "eu")
		So(cfg.Radio.GDO0Pin, ShouldEqual, 24)
		So(cfg.Receiver.Frequency, ShouldEqual, 868350000)
		So(cfg.Receiver.Ignore, ShouldResemble, []string{"starline"})
		So(cfg.Hopper.Frequencies, ShouldResemble, []uint32{433920000, 868350000})
	})

	Convey("Unknown keys are rejected", t, func() {
		_, err := Load(writeConfig(t, "radio:\n  colour: red\n"))
		So(err, ShouldNotBeNil)
	})

	Convey("Environment wins", t, func() {
		t.Setenv("SUBGHZ_FREQUENCY", "315000000")
		t.Setenv("SUBGHZ_HOPPING", "true")
		cfg, err := Load("")
		So(err, ShouldBeNil)
		So(cfg.Receiver.Frequency, ShouldEqual, 315000000)
		So(cfg.Hopper.Enabled, ShouldBeTrue)
	})

	Convey("Invalid values fail validation", t, func() {
		_, err := Load(writeConfig(t, "log:\n  level: chatty\n"))
		So(err, ShouldNotBeNil)
		_, err = Load(writeConfig(t, "receiver:\n  tickMs: 0\n"))
		So(err, ShouldNotBeNil)
	})
}
