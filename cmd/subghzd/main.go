package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/hatstand/subghz"
	"github.com/hatstand/subghz/config"
	"github.com/hatstand/subghz/history"
	"github.com/hatstand/subghz/hopper"
	"github.com/hatstand/subghz/keystore"
	"github.com/hatstand/subghz/notify"
	"github.com/hatstand/subghz/protocol"
	"github.com/hatstand/subghz/receiver"
	"github.com/hatstand/subghz/scene"
	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/rpi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"periph.io/x/periph/host"
)

var configPath = flag.String("config", "", "Path to YAML config")
var debug = flag.Bool("debug", false, "Development logging")
var hopping = flag.Bool("hop", false, "Start with frequency hopping enabled")

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}
	if cfg.Debug || *debug {
		zc := zap.NewDevelopmentConfig()
		zc.Level = level
		return zc.Build()
	}
	if cfg.File == "" {
		zc := zap.NewProductionConfig()
		zc.Level = level
		return zc.Build()
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), w, level)
	return zap.New(core, zap.AddCaller()), nil
}

// newRegistry builds the decoders with the configured RAW thresholds.
func newRegistry(cfg *config.Config) *protocol.Registry {
	raw := protocol.RawOptions{
		Threshold:  cfg.Receiver.RSSIThreshold,
		Gap:        cfg.Receiver.Raw.GapUs,
		MinSamples: cfg.Receiver.Raw.MinSamples,
		Horizon:    cfg.Receiver.Raw.Horizon,
	}
	reg := protocol.NewRegistry()
	reg.Register(protocol.RawName, func() protocol.Decoder { return protocol.NewRawDecoder(raw) })
	reg.Register(protocol.PrincetonName, func() protocol.Decoder { return protocol.NewPrincetonDecoder() })
	return reg
}

// hopperOptions holds on a frequency at the same RSSI the receiver treats as busy.
func hopperOptions(cfg *config.Config, logger *zap.Logger) hopper.Options {
	return hopper.Options{
		Frequencies: cfg.Hopper.Frequencies,
		IdleWindow:  cfg.Hopper.IdleTicks,
		HoldTicks:   cfg.Hopper.HoldTicks,
		Threshold:   cfg.Receiver.RSSIThreshold,
		Logger:      logger,
	}
}

func ignoreList(names []string) []string {
	var out []string
	for _, n := range names {
		if set, ok := protocol.IgnoreSet(n); ok {
			out = append(out, set...)
		} else {
			out = append(out, n)
		}
	}
	return out
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	region, err := subghz.LookupRegion(cfg.Radio.Region)
	if err != nil {
		logger.Fatal("Bad region", zap.String("region", cfg.Radio.Region), zap.Error(err))
	}
	preset, err := subghz.LookupPreset(cfg.Receiver.Preset)
	if err != nil {
		logger.Fatal("Bad preset", zap.String("preset", cfg.Receiver.Preset), zap.Error(err))
	}

	if _, err := host.Init(); err != nil {
		logger.Fatal("Failed to initialise periph", zap.Error(err))
	}
	if err := embd.InitSPI(); err != nil {
		logger.Fatal("Failed to initialise SPI", zap.Error(err))
	}
	defer embd.CloseSPI()
	if err := embd.InitGPIO(); err != nil {
		logger.Fatal("Failed to initialise GPIO", zap.Error(err))
	}
	defer embd.CloseGPIO()

	bus := embd.NewSPIBus(embd.SPIMode0, cfg.Radio.SPIChannel, cfg.Radio.SPISpeed, 8, 0)
	gdo0, err := embd.NewDigitalPin(cfg.Radio.GDO0Pin)
	if err != nil {
		logger.Fatal("Failed to open GDO0", zap.Int("pin", cfg.Radio.GDO0Pin), zap.Error(err))
	}
	defer gdo0.Close()

	opts := []subghz.RadioOption{
		subghz.WithLogger(logger.Named("radio")),
		subghz.WithRegion(region),
		subghz.WithRefillDeadline(cfg.RefillDeadline()),
	}
	if cfg.Radio.RFSwitch != 0 {
		sw, err := embd.NewDigitalPin(cfg.Radio.RFSwitch)
		if err != nil {
			logger.Fatal("Failed to open RF switch", zap.Int("pin", cfg.Radio.RFSwitch), zap.Error(err))
		}
		defer sw.Close()
		if err := sw.SetDirection(embd.Out); err != nil {
			logger.Fatal("Failed to drive RF switch", zap.Error(err))
		}
		opts = append(opts, subghz.WithRFSwitch(sw))
	}
	radio := subghz.NewRadio(subghz.NewCC1101(bus, logger.Named("cc1101")), gdo0, opts...)
	defer radio.Close()
	if err := radio.Init(); err != nil {
		logger.Fatal("Failed to initialise radio", zap.Error(err))
	}

	reg := newRegistry(cfg)
	mux, missing := protocol.NewMultiplexer(reg, protocol.Options{
		Decoders:    cfg.Receiver.Decoders,
		Fallback:    cfg.Receiver.Fallback,
		DedupWindow: cfg.DedupWindow(),
		Logger:      logger.Named("protocol"),
	})
	if len(missing) > 0 {
		logger.Warn("Unknown decoders", zap.Strings("missing", missing), zap.Strings("known", reg.Names()))
	}
	if err := mux.Ignore(ignoreList(cfg.Receiver.Ignore)...); err != nil {
		logger.Debug("Some ignored decoders are not loaded", zap.Error(err))
	}

	var notifier receiver.Notifier
	if cfg.Notify.LED != "" || cfg.Notify.Vibro != "" {
		player, err := notify.NewGPIOPlayer(cfg.Notify.LED, cfg.Notify.Vibro, logger.Named("notify"))
		if err != nil {
			logger.Fatal("Failed to open notification outputs", zap.Error(err))
		}
		defer player.Close()
		notifier = player
	}

	keys, err := keystore.New(cfg.Storage.Dir, logger.Named("keystore"))
	if err != nil {
		logger.Fatal("Failed to open key store", zap.Error(err))
	}

	nav := scene.NewStack(scene.DefaultDepth, logger.Named("scene"))
	nav.Next(scene.Receiver)

	session := receiver.New(radio, mux, receiver.Options{
		Frequency:  cfg.Receiver.Frequency,
		Preset:     preset,
		Threshold:  cfg.Receiver.RSSIThreshold,
		TickPeriod: cfg.Tick(),
		Hopping:    cfg.Hopper.Enabled || *hopping,
		History:    history.New(cfg.Receiver.HistoryBudget),
		Hopper:     hopper.New(hopperOptions(cfg, logger.Named("hopper"))),
		Notifier:   notifier,
		Navigator:  nav,
		Keys:       keys,
		Registry:   reg,
		Logger:     logger.Named("receiver"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpMux := http.NewServeMux()
	httpMux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: httpMux}
	go func() {
		logger.Info("Serving metrics", zap.String("addr", cfg.Metrics.Listen))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	events := make(chan receiver.Event, 4)
	go readConsole(ctx, os.Stdin, events, logger.Named("console"))

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Debug("Failed to notify systemd", zap.Error(err))
	}
	if err := session.Run(ctx, events); err != nil && err != context.Canceled {
		logger.Error("Receiver stopped", zap.Error(err))
	}

	logger.Info("Shutting down...")
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	timeout, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	srv.Shutdown(timeout)
}
