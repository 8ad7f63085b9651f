package chain

import (
	"sync/atomic"
	"time"
)

// TimeService is the chain's view of the current time, in unix milliseconds.
type TimeService interface {
	Now() uint64
	// Adjust moves the view forward to at least ms, where supported.
	Adjust(ms uint64)
}

// RealTimeService reads the system clock. Adjust is a no-op.
type RealTimeService struct{}

func (RealTimeService) Now() uint64 {
	return uint64(time.Now().UnixMilli())
}

func (RealTimeService) Adjust(uint64) {}

// MockTimeService is a manually driven clock that only moves forward.
type MockTimeService struct {
	now atomic.Uint64
}

func NewMockTimeService(start uint64) *MockTimeService {
	ts := &MockTimeService{}
	ts.now.Store(start)
	return ts
}

func (m *MockTimeService) Now() uint64 {
	return m.now.Load()
}

func (m *MockTimeService) Adjust(ms uint64) {
	for {
		cur := m.now.Load()
		if ms <= cur || m.now.CompareAndSwap(cur, ms) {
			return
		}
	}
}

// Sleep advances the clock by d.
func (m *MockTimeService) Sleep(d time.Duration) {
	m.now.Add(uint64(d.Milliseconds()))
}
