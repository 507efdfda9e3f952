// Storiellai is a one-button audio storyteller: present a card, hear
// a story. This binary wires the event sources, the state machine and
// the mock hardware/audio backends together; an appliance build swaps
// the mocks for real drivers.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dimarconicola/storiellai/audio"
	"github.com/dimarconicola/storiellai/bus"
	"github.com/dimarconicola/storiellai/catalog"
	"github.com/dimarconicola/storiellai/config"
	"github.com/dimarconicola/storiellai/hardware"
	"github.com/dimarconicola/storiellai/services/battery"
	"github.com/dimarconicola/storiellai/services/device"
	"github.com/dimarconicola/storiellai/services/gesture"
	"github.com/dimarconicola/storiellai/services/led"
	"github.com/dimarconicola/storiellai/services/playback"
	"github.com/dimarconicola/storiellai/services/selector"
	"github.com/dimarconicola/storiellai/services/token"
	"github.com/dimarconicola/storiellai/types"
)

func main() {
	configPath := flag.String("config", ".", "config file, or directory holding config.yaml")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	var zl *zap.Logger
	var err error
	if *verbose {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		os.Exit(1)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	cfg := config.NewConfig(logger, *configPath)
	if err := cfg.Load(); err != nil {
		logger.Fatalw("Failed to load config", "error", err)
	}
	go cfg.WatchConfigFileChanges()
	defer cfg.StopWatchingConfigFile()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(64)
	hw := hardware.NewMock()
	backend := audio.NewMockBackend()

	cat := catalog.NewFileCatalog(logger, cfg.Audio.CardsDir)
	rep := cat.Verify(cfg.Audio.StoriesDir)
	logger.Infow("Catalog verified",
		"cards", rep.Cards,
		"stories", rep.Stories,
		"corrupt", len(rep.CorruptCards),
		"missingNarration", len(rep.MissingNarration))

	ledEngine := led.NewEngine(hw, logger, cfg.LED.TickHz)
	ledEngine.Start(ctx)

	player := playback.NewController(backend, b.NewConnection("playback"), cfg.Audio, cfg.Volume, logger)
	player.StartVolumeSampler(ctx, hw)

	sel := selector.New(cat, cfg.Calm, logger)

	dev, err := device.New(b.NewConnection("device"), ledEngine, player, sel, hw, cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to build state machine", "error", err)
	}
	if err := dev.Start(ctx); err != nil {
		logger.Fatalw("Failed to start state machine", "error", err)
	}

	gesture.NewService(logger, hw, b.NewConnection("gesture"), gesture.Params{
		DebounceFloor:   cfg.Button.DebounceFloor,
		LongPress:       cfg.Button.LongPress,
		DoubleTapWindow: cfg.Button.DoubleTapWindow,
		Cooldown:        cfg.Button.Cooldown,
	}).Start(ctx)

	token.NewService(logger, hw, b.NewConnection("token"), token.Params{
		CollapseWindow: cfg.Token.CollapseWindow,
		PollInterval:   cfg.Token.PollInterval,
	}).Start(ctx)

	battery.NewService(logger, hw, b.NewConnection("battery"), battery.Params{
		SampleInterval:         cfg.Battery.SampleInterval,
		LowVolts:               cfg.Battery.LowVolts,
		CriticalVolts:          cfg.Battery.CriticalVolts,
		LowRecoveryMargin:      cfg.Battery.LowRecoveryMargin,
		CriticalRecoveryMargin: cfg.Battery.CriticalRecoveryMargin,
		ADCScale:               cfg.Battery.ADCScale,
		Channel:                cfg.Battery.Channel,
	}).Start(ctx)

	conn := b.NewConnection("main")
	conn.Emit(bus.TopicEvents, types.BootComplete{})
	logger.Info("Storiellai up")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		logger.Info("Signal received, shutting down")
	case <-dev.Done():
		logger.Infow("Device requested shutdown")
	}
}
