// Package hardware carries the mock HAL implementation used by tests
// and the simulator. The real appliance injects its own types.Hardware.
package hardware

import (
	"sync"
	"time"

	"github.com/dimarconicola/storiellai/errcode"
	"github.com/dimarconicola/storiellai/types"
)

// Mock is a scriptable types.Hardware. Safe for concurrent use.
type Mock struct {
	mu sync.Mutex

	uid        string
	uidPresent bool
	failReads  int

	edges []types.Edge

	analog    map[int]float64
	analogErr map[int]error

	dimming    bool
	brightness int
	frames     []int

	shutdownReason string
	shutdownAsked  bool
}

func NewMock() *Mock {
	return &Mock{
		analog:    make(map[int]float64),
		analogErr: make(map[int]error),
		dimming:   true,
	}
}

// --- scripting surface ---

// PresentToken places a token in the reader field.
func (m *Mock) PresentToken(uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uid = uid
	m.uidPresent = true
}

// RemoveToken clears the reader field.
func (m *Mock) RemoveToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uid = ""
	m.uidPresent = false
}

// FailReads makes the next n UID reads fail as corrupt.
func (m *Mock) FailReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = n
}

// PushEdge queues a raw button edge.
func (m *Mock) PushEdge(kind types.EdgeKind, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append(m.edges, types.Edge{Kind: kind, At: at})
}

// Press queues a full down-up pair held for the given duration.
func (m *Mock) Press(at time.Time, held time.Duration) {
	m.PushEdge(types.EdgeDown, at)
	m.PushEdge(types.EdgeUp, at.Add(held))
}

// SetAnalog sets the normalized reading of a channel.
func (m *Mock) SetAnalog(channel int, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analog[channel] = v
	delete(m.analogErr, channel)
}

// FailAnalog makes reads of a channel fail until SetAnalog is called.
func (m *Mock) FailAnalog(channel int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analogErr[channel] = errcode.HardwareFault
}

// SetDimming controls whether the LED output reports PWM support.
func (m *Mock) SetDimming(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimming = on
}

// Brightness returns the last brightness written to the output.
func (m *Mock) Brightness() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.brightness
}

// Frames returns every brightness value written, in order.
func (m *Mock) Frames() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.frames))
	copy(out, m.frames)
	return out
}

// ShutdownRequested reports whether (and why) a host shutdown was asked.
func (m *Mock) ShutdownRequested() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdownReason, m.shutdownAsked
}

// --- types.Hardware ---

func (m *Mock) ReadUID() (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads > 0 {
		m.failReads--
		return "", false, errcode.CardReadError
	}
	if !m.uidPresent {
		return "", false, nil
	}
	return m.uid, true, nil
}

func (m *Mock) ReadButtonEdge() (types.Edge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.edges) == 0 {
		return types.Edge{}, false
	}
	e := m.edges[0]
	m.edges = m.edges[1:]
	return e, true
}

func (m *Mock) ReadAnalog(channel int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.analogErr[channel]; ok {
		return 0, err
	}
	return m.analog[channel], nil
}

func (m *Mock) SetDimmableOutput(brightness int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brightness = brightness
	m.frames = append(m.frames, brightness)
}

func (m *Mock) SupportsDimming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dimming
}

func (m *Mock) RequestSystemShutdown(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownAsked = true
	m.shutdownReason = reason
}
