package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberhollow/emberhollow-core/pkg/logger"
)

// fakeProbe scripts ping/reconnect outcomes.
type fakeProbe struct {
	mu            sync.Mutex
	pingErrs      []error
	reconnectErrs []error
	breakerResets int
}

var errDown = errors.New("connection refused")

func (f *fakeProbe) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pingErrs) == 0 {
		return nil
	}
	err := f.pingErrs[0]
	f.pingErrs = f.pingErrs[1:]
	return err
}

func (f *fakeProbe) Reconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reconnectErrs) == 0 {
		return nil
	}
	err := f.reconnectErrs[0]
	f.reconnectErrs = f.reconnectErrs[1:]
	return err
}

func (f *fakeProbe) ResetBreaker() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breakerResets++
}

func (f *fakeProbe) resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.breakerResets
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	m := NewMonitor(&fakeProbe{}, Config{
		ProbeInterval: time.Second,
		BackoffBase:   5 * time.Second,
		BackoffCap:    300 * time.Second,
		MaxRetries:    10,
		ProbeTimeout:  time.Second,
	}, logger.New(logger.Options{Level: "error"}))

	assert.Equal(t, 5*time.Second, m.Backoff(1))
	assert.Equal(t, 10*time.Second, m.Backoff(2))
	assert.Equal(t, 20*time.Second, m.Backoff(3))
	assert.Equal(t, 40*time.Second, m.Backoff(4))
	assert.Equal(t, 160*time.Second, m.Backoff(6))

	// 5s * 2^6 = 320s exceeds the cap.
	assert.Equal(t, 300*time.Second, m.Backoff(7))
	assert.Equal(t, 300*time.Second, m.Backoff(20))
}

func TestBackoff_CapBelowBase(t *testing.T) {
	m := NewMonitor(&fakeProbe{}, Config{
		ProbeInterval: time.Second,
		BackoffBase:   10 * time.Second,
		BackoffCap:    3 * time.Second,
		MaxRetries:    5,
		ProbeTimeout:  time.Second,
	}, logger.New(logger.Options{Level: "error"}))

	assert.Equal(t, 3*time.Second, m.Backoff(1))
}

func TestMonitor_RecoverySignalAndBreakerReset(t *testing.T) {
	probe := &fakeProbe{
		pingErrs:      []error{errDown},
		reconnectErrs: []error{errDown}, // first reconnect fails, second succeeds
	}
	m := NewMonitor(probe, Config{
		ProbeInterval: 5 * time.Millisecond,
		BackoffBase:   time.Millisecond,
		BackoffCap:    4 * time.Millisecond,
		MaxRetries:    10,
		ProbeTimeout:  50 * time.Millisecond,
	}, logger.New(logger.Options{Level: "error"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Start(ctx)

	select {
	case <-m.Recovered():
	case <-ctx.Done():
		t.Fatal("recovery signal never fired")
	}

	assert.Equal(t, 1, probe.resets())
	assert.True(t, m.Healthy())

	cancel()
	m.Wait()
}

func TestMonitor_TerminalAfterMaxRetries(t *testing.T) {
	probe := &fakeProbe{
		pingErrs:      []error{errDown},
		reconnectErrs: []error{errDown, errDown, errDown, errDown, errDown},
	}
	m := NewMonitor(probe, Config{
		ProbeInterval: 5 * time.Millisecond,
		BackoffBase:   time.Millisecond,
		BackoffCap:    2 * time.Millisecond,
		MaxRetries:    3,
		ProbeTimeout:  50 * time.Millisecond,
	}, logger.New(logger.Options{Level: "error"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Start(ctx)

	select {
	case <-m.Terminal():
	case <-ctx.Done():
		t.Fatal("terminal signal never fired")
	}

	assert.False(t, m.Healthy())
	assert.Zero(t, probe.resets())
	m.Wait()
}

func TestMonitor_StopsOnContextCancel(t *testing.T) {
	m := NewMonitor(&fakeProbe{}, Config{
		ProbeInterval: time.Millisecond,
		BackoffBase:   time.Millisecond,
		BackoffCap:    2 * time.Millisecond,
		MaxRetries:    3,
		ProbeTimeout:  50 * time.Millisecond,
	}, logger.New(logger.Options{Level: "error"}))

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	time.Sleep(10 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	require.True(t, m.Healthy())
}