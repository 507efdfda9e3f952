// Command simulate runs the full storyteller stack against the mock
// hardware and drives it from stdin. Handy for poking at the state
// machine without a device on the desk.
//
// Commands:
//
//	card <uid>   present a token
//	remove       take the token away
//	tap          single tap
//	tap2         double tap
//	hold         long press
//	batt <v>     set battery voltage
//	vol <v>      set the volume knob, 0..1
//	finish       complete the current narration
//	state        print the device state
//	led          print the current LED brightness
//	quit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dimarconicola/storiellai/audio"
	"github.com/dimarconicola/storiellai/bus"
	"github.com/dimarconicola/storiellai/catalog"
	"github.com/dimarconicola/storiellai/config"
	"github.com/dimarconicola/storiellai/hardware"
	"github.com/dimarconicola/storiellai/services/battery"
	"github.com/dimarconicola/storiellai/services/device"
	"github.com/dimarconicola/storiellai/services/led"
	"github.com/dimarconicola/storiellai/services/playback"
	"github.com/dimarconicola/storiellai/services/selector"
	"github.com/dimarconicola/storiellai/services/token"
	"github.com/dimarconicola/storiellai/types"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml")
	storyLen := flag.Duration("story-len", 8*time.Second, "simulated narration length")
	flag.Parse()

	zl, err := zap.NewDevelopment()
	if err != nil {
		os.Exit(1)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	cfg := config.NewConfig(logger, *configPath)
	if err := cfg.Load(); err != nil {
		logger.Fatalw("Failed to load config", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(64)
	hw := hardware.NewMock()
	backend := audio.NewMockBackend()
	backend.AutoFinishAfter(*storyLen)

	cat := catalog.NewFileCatalog(logger, cfg.Audio.CardsDir)
	cat.Verify(cfg.Audio.StoriesDir)

	ledEngine := led.NewEngine(hw, logger, cfg.LED.TickHz)
	ledEngine.Start(ctx)

	player := playback.NewController(backend, b.NewConnection("playback"), cfg.Audio, cfg.Volume, logger)
	player.StartVolumeSampler(ctx, hw)

	dev, err := device.New(
		b.NewConnection("device"),
		ledEngine,
		player,
		selector.New(cat, cfg.Calm, logger),
		hw, cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to build state machine", "error", err)
	}
	if err := dev.Start(ctx); err != nil {
		logger.Fatalw("Failed to start state machine", "error", err)
	}

	token.NewService(logger, hw, b.NewConnection("token"), token.Params{
		CollapseWindow: cfg.Token.CollapseWindow,
		PollInterval:   cfg.Token.PollInterval,
	}).Start(ctx)

	battery.NewService(logger, hw, b.NewConnection("battery"), battery.Params{
		SampleInterval:         200 * time.Millisecond,
		LowVolts:               cfg.Battery.LowVolts,
		CriticalVolts:          cfg.Battery.CriticalVolts,
		LowRecoveryMargin:      cfg.Battery.LowRecoveryMargin,
		CriticalRecoveryMargin: cfg.Battery.CriticalRecoveryMargin,
		ADCScale:               1.0, // commands give volts directly
		Channel:                cfg.Battery.Channel,
	}).Start(ctx)

	hw.SetAnalog(cfg.Battery.Channel, 4.0)
	hw.SetAnalog(cfg.Volume.Channel, 0.7)

	conn := b.NewConnection("simulate")
	conn.Emit(bus.TopicEvents, types.BootComplete{})

	go func() {
		<-dev.Done()
		reason, _ := hw.ShutdownRequested()
		fmt.Printf("device shut down (%s)\n", reason)
		os.Exit(0)
	}()

	// The classified-gesture layer is injected directly; the raw edge
	// timing lives in its own tests.
	gesture := func(g types.Gesture) {
		conn.Emit(bus.TopicEvents, types.ButtonEvent{Gesture: g, At: time.Now()})
	}

	sc := bufio.NewScanner(os.Stdin)
	fmt.Println("storiellai simulator; 'card <uid>', 'tap', 'hold', 'quit' ...")
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "card":
			if len(fields) < 2 {
				fmt.Println("usage: card <uid>")
				continue
			}
			hw.PresentToken(fields[1])
		case "remove":
			hw.RemoveToken()
		case "tap":
			gesture(types.GestureTap)
		case "tap2":
			gesture(types.GestureDoubleTap)
		case "hold":
			gesture(types.GestureLongPress)
		case "batt":
			if v, err := strconv.ParseFloat(fields[len(fields)-1], 64); err == nil {
				hw.SetAnalog(cfg.Battery.Channel, v)
			}
		case "vol":
			if v, err := strconv.ParseFloat(fields[len(fields)-1], 64); err == nil {
				hw.SetAnalog(cfg.Volume.Channel, v)
			}
		case "finish":
			for _, h := range backend.Handles() {
				if !h.Looping() && h.Playing() {
					h.Complete()
				}
			}
		case "state":
			fmt.Println(dev.State())
		case "led":
			fmt.Printf("brightness %d\n", hw.Brightness())
		case "quit", "exit":
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
