// Command dump prints every captured edge and every decoded key at one frequency.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/hatstand/subghz"
	"github.com/hatstand/subghz/protocol"
	"github.com/hatstand/subghz/pulse"
	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/rpi"
	"go.uber.org/zap"
)

var frequency = flag.Uint("freq", subghz.DefaultFrequency, "Frequency in Hz")
var presetName = flag.String("preset", "AM650", "Modem preset")
var gdo0Pin = flag.Int("gdo0", 24, "GPIO wired to GDO0")
var raw = flag.Bool("raw", false, "Print every edge")

func main() {
	flag.Parse()
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	preset, err := subghz.LookupPreset(*presetName)
	if err != nil {
		logger.Fatal("Bad preset", zap.String("preset", *presetName), zap.Error(err))
	}
	if err := embd.InitSPI(); err != nil {
		logger.Fatal("Failed to initialise SPI", zap.Error(err))
	}
	defer embd.CloseSPI()
	if err := embd.InitGPIO(); err != nil {
		logger.Fatal("Failed to initialise GPIO", zap.Error(err))
	}
	defer embd.CloseGPIO()

	gdo0, err := embd.NewDigitalPin(*gdo0Pin)
	if err != nil {
		logger.Fatal("Failed to open GDO0", zap.Error(err))
	}
	bus := embd.NewSPIBus(embd.SPIMode0, 0, 500000, 8, 0)
	radio := subghz.NewRadio(subghz.NewCC1101(bus, logger), gdo0, subghz.WithLogger(logger))
	defer radio.Close()
	if err := radio.Init(); err != nil {
		logger.Fatal("Failed to initialise radio", zap.Error(err))
	}
	if err := radio.LoadPreset(preset); err != nil {
		logger.Fatal("Failed to load preset", zap.Error(err))
	}
	actual, err := radio.SetFrequency(uint32(*frequency))
	if err != nil {
		logger.Fatal("Failed to tune", zap.Error(err))
	}

	mux, _ := protocol.NewMultiplexer(protocol.DefaultRegistry, protocol.Options{
		Decoders: []string{protocol.PrincetonName},
		Fallback: protocol.RawName,
		Logger:   logger,
	})
	mux.SetTuning(actual, preset.ShortName())

	edges := make(chan pulse.LevelDuration, 1024)
	err = radio.StartRx(func(level bool, duration uint32) {
		mux.Feed(level, duration)
		if *raw {
			select {
			case edges <- pulse.New(level, duration):
			default:
			}
		}
	})
	if err != nil {
		logger.Fatal("Failed to start receiving", zap.Error(err))
	}
	logger.Info("Listening", zap.Uint32("frequency", actual), zap.String("preset", preset.Name))

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ch:
			radio.StopRx()
			return
		case ld := <-edges:
			fmt.Println(ld.Signed())
		case <-ticker.C:
			mux.InputRSSI(radio.RSSI())
		case item := <-mux.Items():
			fmt.Printf("%s %.1fdBm\n%s\n", item.Time.Format("15:04:05"), item.RSSI, item.Text)
		}
	}
}
