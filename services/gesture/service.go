// Package gesture classifies raw button edges into Tap, DoubleTap and
// LongPress events, exactly once per gesture. Gating of gestures in
// particular device states happens in the state machine, never here.
package gesture

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dimarconicola/storiellai/bus"
	"github.com/dimarconicola/storiellai/types"
)

const pollInterval = 5 * time.Millisecond

type Service struct {
	hw     types.Hardware
	conn   *bus.Connection
	cls    *classifier
	logger *zap.SugaredLogger
}

func NewService(logger *zap.SugaredLogger, hw types.Hardware, conn *bus.Connection, p Params) *Service {
	return &Service{
		hw:     hw,
		conn:   conn,
		cls:    newClassifier(p),
		logger: logger.Named("gesture"),
	}
}

// Start launches the poll loop.
func (s *Service) Start(ctx context.Context) {
	go s.serviceLoop(ctx)
}

func (s *Service) serviceLoop(ctx context.Context) {
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Gesture service stopping")
			return
		case now := <-tick.C:
			for {
				edge, ok := s.hw.ReadButtonEdge()
				if !ok {
					break
				}
				if g, fired := s.cls.Edge(edge); fired {
					s.emit(g, edge.At)
				}
			}
			if g, fired := s.cls.Tick(now); fired {
				s.emit(g, now)
			}
		}
	}
}

func (s *Service) emit(g types.Gesture, at time.Time) {
	s.logger.Debugw("Gesture classified", "gesture", g.String())
	s.conn.Emit(bus.TopicEvents, types.ButtonEvent{Gesture: g, At: at})
}
