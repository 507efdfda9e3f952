// Package device hosts the state machine that owns the appliance.
// Every event source publishes onto the bus; this service is the only
// consumer, so state transitions happen strictly one at a time.
package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/librescoot/librefsm"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"

	"github.com/dimarconicola/storiellai/bus"
	"github.com/dimarconicola/storiellai/config"
	"github.com/dimarconicola/storiellai/errcode"
	"github.com/dimarconicola/storiellai/services/led"
	"github.com/dimarconicola/storiellai/types"
)

// LED is the pattern surface the machine commands.
type LED interface {
	SetPattern(led.Spec)
}

// Player is the playback surface the machine commands. Long
// operations complete asynchronously and come back as bus events.
type Player interface {
	LoadAndPlay(story types.StoryRecord, gen uint64)
	Pause()
	Resume()
	StopImmediate()
	Shutdown(grace time.Duration)
}

// Chooser resolves a token into a story.
type Chooser interface {
	Select(uid, excludeID string) (types.StoryRecord, error)
}

type Service struct {
	conn     *bus.Connection
	led      LED
	player   Player
	selector Chooser
	hw       types.Hardware
	logger   *zap.SugaredLogger
	slog     *slog.Logger

	idleTimeout  time.Duration
	escalation   int
	endFade      time.Duration
	shutdownFade time.Duration

	machine *librefsm.Machine
	done    chan struct{}

	// Session state, owned by the machine goroutine.
	uid          string
	lastStoryID  string
	loadGen      uint64
	errorStreak  int
	lastFailure  errcode.Code
	reason       types.ShutdownReason
	shuttingDown bool
}

func New(conn *bus.Connection, l LED, player Player, selector Chooser, hw types.Hardware, cfg *config.CanonicalConfig, logger *zap.SugaredLogger) (*Service, error) {
	s := &Service{
		conn:         conn,
		led:          l,
		player:       player,
		selector:     selector,
		hw:           hw,
		logger:       logger.Named("device"),
		slog:         slog.New(zapslog.NewHandler(logger.Desugar().Core())),
		idleTimeout:  cfg.Sleep.IdleTimeout,
		escalation:   cfg.Errors.EscalationThreshold,
		endFade:      cfg.Audio.Fade,
		shutdownFade: cfg.Audio.ShutdownFade,
		done:         make(chan struct{}),
	}
	m, err := s.buildMachine()
	if err != nil {
		return nil, err
	}
	s.machine = m
	return s, nil
}

// onStateChange mirrors the machine state onto the bus as a retained
// value so late subscribers see where the device is.
func (s *Service) onStateChange(from, to librefsm.StateID) {
	s.logger.Infow("State changed", "from", from, "to", to)
	s.conn.Retain(bus.TopicDevice, string(to))
}

// State returns the current machine state.
func (s *Service) State() librefsm.StateID { return s.machine.CurrentState() }

// Done is closed once a shutdown has been handed to the hardware.
func (s *Service) Done() <-chan struct{} { return s.done }

// Start enters the initial state and begins pumping bus events into
// the machine. Blocks only on subscription setup.
func (s *Service) Start(ctx context.Context) error {
	sub := s.conn.Subscribe(bus.TopicEvents)
	if err := s.machine.Start(ctx); err != nil {
		return err
	}
	go func() {
		defer s.machine.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				s.dispatch(msg.Payload)
			}
		}
	}()
	return nil
}

// dispatch translates a bus payload into a machine event. Unmatched
// payloads are dropped; the machine itself drops events its current
// state has no transition for.
func (s *Service) dispatch(payload any) {
	switch ev := payload.(type) {
	case types.BootComplete:
		s.send(evBootComplete, nil)
	case types.ButtonEvent:
		switch ev.Gesture {
		case types.GestureTap:
			s.send(evTap, ev)
		case types.GestureDoubleTap:
			s.send(evDoubleTap, ev)
		case types.GestureLongPress:
			s.send(evLongPress, ev)
		}
	case types.TokenEvent:
		s.send(evCardPresented, ev)
	case types.TokenReadError:
		s.send(evCardReadError, ev)
	case types.BatteryLevelChanged:
		s.onBattery(ev)
	case types.StorySelected:
		s.send(evStorySelected, ev)
	case types.SelectionFailed:
		s.send(evSelectionFailed, ev)
	case types.PlaybackStarted:
		s.send(evPlaybackStarted, ev)
	case types.AudioLoadFailed:
		s.send(evAudioLoadFailed, ev)
	case types.NarrationFinished:
		s.send(evNarrationDone, ev)
	case types.EndFadeDone:
		s.send(evEndFadeDone, ev)
	}
}

func (s *Service) send(id librefsm.EventID, payload any) {
	s.machine.Send(librefsm.Event{ID: id, Payload: payload})
}

// onBattery overlays a warning flash on Low without disturbing the
// session; Critical pre-empts everything.
func (s *Service) onBattery(ev types.BatteryLevelChanged) {
	switch ev.State.Level {
	case types.BatteryCritical:
		s.logger.Warnw("Battery critical", "voltage", ev.State.Voltage)
		s.send(evBatteryCritical, ev)
	case types.BatteryLow:
		s.logger.Warnw("Battery low", "voltage", ev.State.Voltage)
		state := s.machine.CurrentState()
		// END carries the fade-out pattern whose callback returns the
		// machine to idle; an overlay there would swallow it.
		if state == StateShuttingDown || state == StateEnd {
			return
		}
		warn := led.BatteryWarning()
		restore := s.steadyPattern(state)
		warn.Next = &restore
		s.led.SetPattern(warn)
	default:
		s.logger.Infow("Battery recovered", "voltage", ev.State.Voltage)
	}
}

// steadyPattern is the resting pattern of a state, used to restore
// the LED after a transient overlay.
func (s *Service) steadyPattern(state librefsm.StateID) led.Spec {
	switch state {
	case StatePlaying:
		return led.Solid(100)
	case StatePaused:
		return led.BreathingPaused()
	case StateLoading:
		return led.Loading()
	case StateError:
		return led.BreathingPaused()
	case StateBooting:
		return led.Breathing(time.Second)
	default:
		return led.Breathing(2 * time.Second)
	}
}
