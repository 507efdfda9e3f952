// Package battery samples the battery sense voltage and emits
// hysteresis-gated level-change events. Single writer of BatteryState;
// the rest of the system sees it through events and the retained
// state topic only.
package battery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dimarconicola/storiellai/bus"
	"github.com/dimarconicola/storiellai/types"
)

// Params are the sampling and threshold settings, consumed from config.
type Params struct {
	SampleInterval         time.Duration
	LowVolts               float64
	CriticalVolts          float64
	LowRecoveryMargin      float64
	CriticalRecoveryMargin float64
	ADCScale               float64
	Channel                int
}

// classify applies the two-threshold hysteresis. Each threshold has an
// independent recovery margin above it, so noise near a threshold
// cannot toggle the level back and forth.
func classify(prev types.BatteryLevel, volts float64, p Params) types.BatteryLevel {
	switch prev {
	case types.BatteryNormal:
		if volts <= p.CriticalVolts {
			return types.BatteryCritical
		}
		if volts <= p.LowVolts {
			return types.BatteryLow
		}
		return types.BatteryNormal

	case types.BatteryLow:
		if volts <= p.CriticalVolts {
			return types.BatteryCritical
		}
		if volts > p.LowVolts+p.LowRecoveryMargin {
			return types.BatteryNormal
		}
		return types.BatteryLow

	default: // critical
		if volts > p.CriticalVolts+p.CriticalRecoveryMargin {
			if volts > p.LowVolts+p.LowRecoveryMargin {
				return types.BatteryNormal
			}
			return types.BatteryLow
		}
		return types.BatteryCritical
	}
}

type Service struct {
	hw     types.Hardware
	conn   *bus.Connection
	p      Params
	logger *zap.SugaredLogger

	level     types.BatteryLevel
	lastVolts float64
	haveVolts bool
	faulted   bool
}

func NewService(logger *zap.SugaredLogger, hw types.Hardware, conn *bus.Connection, p Params) *Service {
	return &Service{
		hw:     hw,
		conn:   conn,
		p:      p,
		logger: logger.Named("battery"),
		level:  types.BatteryNormal,
	}
}

// Start launches the sampling loop.
func (s *Service) Start(ctx context.Context) {
	go s.serviceLoop(ctx)
}

func (s *Service) serviceLoop(ctx context.Context) {
	tick := time.NewTicker(s.p.SampleInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Battery service stopping")
			return
		case now := <-tick.C:
			s.sample(now)
		}
	}
}

func (s *Service) sample(now time.Time) {
	reading, err := s.hw.ReadAnalog(s.p.Channel)
	if err != nil {
		// Absorbed: fall back to last-known, never raised to the core.
		if !s.faulted {
			s.logger.Warnw("Battery sense fault, holding last-known voltage",
				"error", err, "lastVolts", s.lastVolts)
			s.faulted = true
		}
		if !s.haveVolts {
			return
		}
		reading = s.lastVolts / s.p.ADCScale
	} else {
		s.faulted = false
	}

	volts := reading * s.p.ADCScale
	s.lastVolts = volts
	s.haveVolts = true

	next := classify(s.level, volts, s.p)
	state := types.BatteryState{Voltage: volts, Level: next, SampledAt: now}
	s.conn.Retain(bus.TopicBattery, state)

	if next == s.level {
		return
	}
	s.level = next
	s.logger.Infow("Battery level changed", "level", next.String(), "volts", volts)
	s.conn.Emit(bus.TopicEvents, types.BatteryLevelChanged{State: state})
}
