package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualScheduler_Order(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewManualScheduler(start)

	var order []string
	s.AfterFunc(20*time.Millisecond, func() { order = append(order, "b") })
	s.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	s.AfterFunc(20*time.Millisecond, func() { order = append(order, "c") })

	assert.Equal(t, 3, s.Advance(20*time.Millisecond))
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, start.Add(20*time.Millisecond), s.Now())
	assert.Zero(t, s.Pending())
}

func TestManualScheduler_NestedAndStop(t *testing.T) {
	s := NewManualScheduler(time.Unix(0, 0))

	fired := 0
	s.AfterFunc(5*time.Millisecond, func() {
		fired++
		s.AfterFunc(5*time.Millisecond, func() { fired++ })
		s.AfterFunc(time.Second, func() { fired++ })
	})
	h := s.AfterFunc(7*time.Millisecond, func() { fired += 100 })
	assert.True(t, h.Stop())
	assert.False(t, h.Stop())

	assert.Equal(t, 2, s.Advance(10*time.Millisecond))
	assert.Equal(t, 2, fired)
	assert.Equal(t, 1, s.Pending())
}

func TestTimerScheduler(t *testing.T) {
	done := make(chan struct{})
	TimerScheduler{}.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
