// Package token debounces token-reader hardware into CardPresented and
// CardReadError events.
package token

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dimarconicola/storiellai/bus"
	"github.com/dimarconicola/storiellai/types"
)

// Params are the debounce settings, consumed from config.
type Params struct {
	CollapseWindow time.Duration
	PollInterval   time.Duration
}

type Service struct {
	hw     types.Hardware
	conn   *bus.Connection
	p      Params
	logger *zap.SugaredLogger

	lastUID    string
	lastEmitAt time.Time
	readFailed bool
}

func NewService(logger *zap.SugaredLogger, hw types.Hardware, conn *bus.Connection, p Params) *Service {
	return &Service{
		hw:     hw,
		conn:   conn,
		p:      p,
		logger: logger.Named("token"),
	}
}

// Start launches the poll loop.
func (s *Service) Start(ctx context.Context) {
	go s.serviceLoop(ctx)
}

func (s *Service) serviceLoop(ctx context.Context) {
	tick := time.NewTicker(s.p.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Token service stopping")
			return
		case now := <-tick.C:
			s.poll(now)
		}
	}
}

func (s *Service) poll(now time.Time) {
	uid, present, err := s.hw.ReadUID()
	if err != nil {
		// Report once per fault streak; the reader retries every poll
		// and a flaky antenna would otherwise flood the bus.
		if !s.readFailed {
			s.logger.Warnw("Token read failed", "error", err)
			s.conn.Emit(bus.TopicEvents, types.TokenReadError{At: now})
			s.readFailed = true
		}
		// A failed read must not suppress the next good read of the
		// same card.
		s.lastUID = ""
		return
	}
	s.readFailed = false
	if !present {
		return
	}

	// Identical UID inside the collapse window coalesces into the
	// already-emitted presentation. A different UID always emits.
	if uid == s.lastUID && now.Sub(s.lastEmitAt) < s.p.CollapseWindow {
		s.lastEmitAt = now // card still on the reader, keep collapsing
		return
	}

	s.lastUID = uid
	s.lastEmitAt = now
	s.logger.Infow("Card presented", "uid", uid)
	s.conn.Emit(bus.TopicEvents, types.TokenEvent{UID: uid, At: now})
}
