package device

import (
	"time"

	"github.com/librescoot/librefsm"

	"github.com/dimarconicola/storiellai/bus"
	"github.com/dimarconicola/storiellai/errcode"
	"github.com/dimarconicola/storiellai/services/led"
	"github.com/dimarconicola/storiellai/types"
)

// Device states.
const (
	StateBooting      librefsm.StateID = "booting"
	StateIdle         librefsm.StateID = "idle"
	StateCardRead     librefsm.StateID = "card_read"
	StateLoading      librefsm.StateID = "loading"
	StatePlaying      librefsm.StateID = "playing"
	StatePaused       librefsm.StateID = "paused"
	StateEnd          librefsm.StateID = "end"
	StateError        librefsm.StateID = "error"
	StateShuttingDown librefsm.StateID = "shutting_down"
)

// Machine events.
const (
	evBootComplete    librefsm.EventID = "boot_complete"
	evCardPresented   librefsm.EventID = "card_presented"
	evCardReadError   librefsm.EventID = "card_read_error"
	evStorySelected   librefsm.EventID = "story_selected"
	evSelectionFailed librefsm.EventID = "selection_failed"
	evPlaybackStarted librefsm.EventID = "playback_started"
	evAudioLoadFailed librefsm.EventID = "audio_load_failed"
	evNarrationDone   librefsm.EventID = "narration_finished"
	evEndFadeDone     librefsm.EventID = "end_fade_done"
	evTap             librefsm.EventID = "tap"
	evDoubleTap       librefsm.EventID = "double_tap"
	evLongPress       librefsm.EventID = "long_press"
	evBatteryCritical librefsm.EventID = "battery_critical"
	evIdleTimeout     librefsm.EventID = "idle_timeout"
	evErrorsExceeded  librefsm.EventID = "errors_exceeded"
)

// buildMachine wires the transition table. All handlers run on the
// machine's event goroutine, so Service session fields need no lock.
func (s *Service) buildMachine() (*librefsm.Machine, error) {
	def := librefsm.NewDefinition().
		Initial(StateBooting).
		State(StateBooting, librefsm.WithOnEnter(s.enterBooting)).
		State(StateIdle,
			librefsm.WithOnEnter(s.enterIdle),
			librefsm.WithTimeout(s.idleTimeout, evIdleTimeout)).
		State(StateCardRead, librefsm.WithOnEnter(s.enterCardRead)).
		State(StateLoading, librefsm.WithOnEnter(s.enterLoading)).
		State(StatePlaying, librefsm.WithOnEnter(s.enterPlaying)).
		State(StatePaused, librefsm.WithOnEnter(s.enterPaused)).
		State(StateEnd, librefsm.WithOnEnter(s.enterEnd)).
		State(StateError, librefsm.WithOnEnter(s.enterError)).
		FinalState(StateShuttingDown, librefsm.WithOnEnter(s.enterShutdown))

	def.
		Transition(StateBooting, evBootComplete, StateIdle).
		// A token interrupts whatever is happening, stopping any live
		// or in-flight session first.
		Transition(StateIdle, evCardPresented, StateCardRead, librefsm.WithAction(s.acceptCard)).
		Transition(StateCardRead, evCardPresented, StateCardRead, librefsm.WithAction(s.acceptCard)).
		Transition(StateLoading, evCardPresented, StateCardRead, librefsm.WithAction(s.acceptCard)).
		Transition(StatePlaying, evCardPresented, StateCardRead, librefsm.WithAction(s.acceptCard)).
		Transition(StatePaused, evCardPresented, StateCardRead, librefsm.WithAction(s.acceptCard)).
		Transition(StateEnd, evCardPresented, StateCardRead, librefsm.WithAction(s.acceptCard)).
		Transition(StateError, evCardPresented, StateCardRead, librefsm.WithAction(s.acceptCard)).
		// Selection results are tied to the token they were asked for.
		Transition(StateCardRead, evStorySelected, StateLoading,
			librefsm.WithGuard(s.selectionCurrent),
			librefsm.WithAction(s.stageStory)).
		Transition(StateCardRead, evSelectionFailed, StateError,
			librefsm.WithGuard(s.selectionCurrent),
			librefsm.WithAction(s.noteSelectionFailure)).
		Transition(StateIdle, evCardReadError, StateError, librefsm.WithAction(s.noteCardReadFailure)).
		Transition(StateCardRead, evCardReadError, StateError, librefsm.WithAction(s.noteCardReadFailure)).
		// Load completions carry a generation; stale ones are discarded.
		Transition(StateLoading, evPlaybackStarted, StatePlaying, librefsm.WithGuard(s.loadCurrent)).
		Transition(StateLoading, evAudioLoadFailed, StateError,
			librefsm.WithGuard(s.loadCurrent),
			librefsm.WithAction(func(ctx *librefsm.Context) error {
				s.lastFailure = errcode.AudioLoadError
				return nil
			})).
		Transition(StateLoading, evStorySelected, StateLoading,
			librefsm.WithGuard(s.selectionCurrent),
			librefsm.WithAction(s.stageStory)).
		Transition(StateLoading, evSelectionFailed, StateError,
			librefsm.WithGuard(s.selectionCurrent),
			librefsm.WithAction(s.noteSelectionFailure)).
		// Gestures.
		Transition(StatePlaying, evTap, StatePaused).
		Transition(StatePaused, evTap, StatePlaying, librefsm.WithAction(func(ctx *librefsm.Context) error {
			s.player.Resume()
			return nil
		})).
		Transition(StateError, evTap, StateIdle).
		Transition(StatePlaying, evDoubleTap, StateLoading, librefsm.WithAction(s.reselect)).
		Transition(StatePaused, evDoubleTap, StateLoading, librefsm.WithAction(s.reselect)).
		// End of story.
		Transition(StatePlaying, evNarrationDone, StateEnd).
		Transition(StateEnd, evEndFadeDone, StateIdle).
		// Terminal paths.
		Transition(StateIdle, evIdleTimeout, StateShuttingDown, librefsm.WithAction(func(ctx *librefsm.Context) error {
			s.reason = types.ShutdownInactivity
			return nil
		})).
		Transition(StateError, evErrorsExceeded, StateShuttingDown, librefsm.WithAction(func(ctx *librefsm.Context) error {
			s.reason = types.ShutdownErrors
			return nil
		})).
		AnyStateTransition(evLongPress, StateShuttingDown,
			librefsm.WithGuard(s.notShuttingDown),
			librefsm.WithAction(func(ctx *librefsm.Context) error {
				s.reason = types.ShutdownUser
				return nil
			})).
		AnyStateTransition(evBatteryCritical, StateShuttingDown,
			librefsm.WithGuard(s.notShuttingDown),
			librefsm.WithAction(func(ctx *librefsm.Context) error {
				s.reason = types.ShutdownBattery
				return nil
			}))

	return def.Build(
		librefsm.WithEventQueueSize(256),
		librefsm.WithLogger(s.slog),
		librefsm.WithStateChangeCallback(s.onStateChange),
	)
}

// --- guards ---

// notShuttingDown reads the service's own flag rather than asking the
// machine, which holds its lock while guards run.
func (s *Service) notShuttingDown(ctx *librefsm.Context) bool {
	return !s.shuttingDown
}

func (s *Service) selectionCurrent(ctx *librefsm.Context) bool {
	switch p := ctx.Event.Payload.(type) {
	case types.StorySelected:
		return p.UID == s.uid
	case types.SelectionFailed:
		return p.UID == s.uid
	}
	return false
}

func (s *Service) loadCurrent(ctx *librefsm.Context) bool {
	switch p := ctx.Event.Payload.(type) {
	case types.PlaybackStarted:
		return p.Gen == s.loadGen
	case types.AudioLoadFailed:
		return p.Gen == s.loadGen
	}
	return false
}

// --- transition actions ---

// acceptCard adopts the presented token as the active one and starts
// a selection for it. Whatever session was live or loading is dead
// from this moment: the load generation moves on so late completions
// fall on the floor. Runs as a transition action so that a second
// card arriving in CARD_READ restarts the work.
func (s *Service) acceptCard(ctx *librefsm.Context) error {
	ev := ctx.Event.Payload.(types.TokenEvent)
	s.player.StopImmediate()
	s.loadGen++
	s.uid = ev.UID
	s.runSelection(s.uid, s.lastStoryID)
	return nil
}

// stageStory hands a selected story to the player. Also a transition
// action: a selection answered while already in LOADING issues a
// fresh load instead of getting lost.
func (s *Service) stageStory(ctx *librefsm.Context) error {
	ev := ctx.Event.Payload.(types.StorySelected)
	s.loadGen++
	s.lastStoryID = ev.Story.ID
	s.player.LoadAndPlay(ev.Story, s.loadGen)
	return nil
}

func (s *Service) noteSelectionFailure(ctx *librefsm.Context) error {
	ev := ctx.Event.Payload.(types.SelectionFailed)
	s.lastFailure = ev.Code
	return nil
}

func (s *Service) noteCardReadFailure(ctx *librefsm.Context) error {
	s.lastFailure = errcode.CardReadError
	return nil
}

// reselect handles a double tap: pick a different story from the same
// card while the machine moves to loading.
func (s *Service) reselect(ctx *librefsm.Context) error {
	s.player.StopImmediate()
	s.loadGen++
	s.runSelection(s.uid, s.lastStoryID)
	return nil
}

// --- entry actions ---

func (s *Service) enterBooting(ctx *librefsm.Context) error {
	s.led.SetPattern(led.BootSequence())
	return nil
}

func (s *Service) enterIdle(ctx *librefsm.Context) error {
	s.led.SetPattern(led.Breathing(2 * time.Second))
	s.uid = ""
	return nil
}

func (s *Service) enterCardRead(ctx *librefsm.Context) error {
	s.led.SetPattern(led.CardRecognized())
	return nil
}

// runSelection asks the selector off the machine goroutine and feeds
// the answer back in as an event.
func (s *Service) runSelection(uid, excludeID string) {
	go func() {
		story, err := s.selector.Select(uid, excludeID)
		if err != nil {
			s.logger.Warnw("Selection failed", "uid", uid, "error", err)
			s.machine.Send(librefsm.Event{
				ID:      evSelectionFailed,
				Payload: types.SelectionFailed{UID: uid, Code: errcode.Of(err)},
			})
			return
		}
		s.machine.Send(librefsm.Event{
			ID:      evStorySelected,
			Payload: types.StorySelected{UID: uid, Story: story},
		})
	}()
}

func (s *Service) enterLoading(ctx *librefsm.Context) error {
	s.led.SetPattern(led.Loading())
	return nil
}

func (s *Service) enterPlaying(ctx *librefsm.Context) error {
	s.led.SetPattern(led.Solid(100))
	s.errorStreak = 0
	return nil
}

func (s *Service) enterPaused(ctx *librefsm.Context) error {
	s.led.SetPattern(led.BreathingPaused())
	s.player.Pause()
	return nil
}

func (s *Service) enterEnd(ctx *librefsm.Context) error {
	breathing := led.Breathing(2 * time.Second)
	fade := led.FadeOut(100, s.endFade)
	fade.Next = &breathing
	fade.Callback = func() {
		s.conn.Emit(bus.TopicEvents, types.EndFadeDone{})
	}
	s.led.SetPattern(fade)
	return nil
}

func (s *Service) enterError(ctx *librefsm.Context) error {
	s.errorStreak++
	s.logger.Warnw("Entered error state",
		"code", s.lastFailure,
		"streak", s.errorStreak)
	if s.errorStreak >= s.escalation {
		s.led.SetPattern(led.SOS())
		ctx.Send(librefsm.Event{ID: evErrorsExceeded})
		return nil
	}
	breathing := led.BreathingPaused()
	flash := led.ErrorFlash()
	flash.Next = &breathing
	s.led.SetPattern(flash)
	return nil
}

func (s *Service) enterShutdown(ctx *librefsm.Context) error {
	s.shuttingDown = true
	reason := s.reason
	switch reason {
	case types.ShutdownInactivity:
		s.led.SetPattern(led.PowerSaveSequence())
	case types.ShutdownBattery:
		s.led.SetPattern(led.BatteryWarning())
	case types.ShutdownErrors:
		s.led.SetPattern(led.SOS())
	default:
		s.led.SetPattern(led.ShutdownSequence())
	}
	// Audio teardown fades; it must not stall the event loop.
	go func() {
		if reason == types.ShutdownBattery {
			s.player.StopImmediate()
		} else {
			s.player.Shutdown(s.shutdownFade)
		}
		s.hw.RequestSystemShutdown(reason.String())
		close(s.done)
	}()
	return nil
}
