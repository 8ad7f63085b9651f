package exception

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/mezonai/chainsync/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func panicsFor(t *testing.T, component string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "chainsync_panics_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "component" && l.GetValue() == component {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logx.SetOutput(&buf)
	t.Cleanup(func() { logx.SetOutput(os.Stdout) })
	return &buf
}

func TestSafeGoRecoversAndCountsByComponent(t *testing.T) {
	buf := captureLog(t)
	before := panicsFor(t, "Worker")
	otherBefore := panicsFor(t, "Other")

	done := make(chan struct{})
	SafeGo("Worker", func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not finish")
	}
	require.Eventually(t, func() bool {
		return panicsFor(t, "Worker") == before+1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, otherBefore, panicsFor(t, "Other"))
	assert.Contains(t, buf.String(), "recovered in Worker: boom")
}

func TestSafeGoWithoutPanicLeavesCounter(t *testing.T) {
	before := panicsFor(t, "Quiet")
	done := make(chan struct{})
	SafeGo("Quiet", func() { close(done) })
	<-done
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, panicsFor(t, "Quiet"))
}

func TestRecoverStopsPanicInCaller(t *testing.T) {
	before := panicsFor(t, "Handler")
	assert.NotPanics(t, func() {
		defer Recover("Handler")
		panic("handler failed")
	})
	assert.Equal(t, before+1, panicsFor(t, "Handler"))
}
