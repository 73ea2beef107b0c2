package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New(threshold, cooldown)
	b.now = clk.now
	return b, clk
}

var errDown = errors.New("sink down")

func TestBreaker_Lifecycle(t *testing.T) {
	b, clk := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure("nats")
	}
	assert.True(t, b.Allow("nats"), "below threshold stays closed")

	b.RecordFailure("nats")
	assert.Equal(t, StateOpen, b.State("nats"))
	assert.False(t, b.Allow("nats"))

	clk.advance(59 * time.Second)
	assert.False(t, b.Allow("nats"), "still cooling down")

	clk.advance(time.Second)
	assert.True(t, b.Allow("nats"), "probe admitted after cooldown")
	assert.Equal(t, StateHalfOpen, b.State("nats"))
	assert.False(t, b.Allow("nats"), "only one probe at a time")

	b.RecordSuccess("nats")
	assert.Equal(t, StateClosed, b.State("nats"))
	assert.True(t, b.Allow("nats"))
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, clk := newTestBreaker(1, time.Second)

	b.RecordFailure("hub")
	clk.advance(time.Second)
	require.True(t, b.Allow("hub"))

	b.RecordFailure("hub")
	assert.Equal(t, StateOpen, b.State("hub"))
	assert.False(t, b.Allow("hub"))
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(2, time.Second)

	b.RecordFailure("nats")
	b.RecordSuccess("nats")
	b.RecordFailure("nats")
	assert.Equal(t, StateClosed, b.State("nats"))
}

func TestBreaker_KeysAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)

	b.RecordFailure("nats")
	assert.False(t, b.Allow("nats"))
	assert.True(t, b.Allow("hub"))
	assert.Equal(t, StateClosed, b.State("unknown"))
}

func TestBreaker_Do(t *testing.T) {
	b, clk := newTestBreaker(2, time.Minute)

	calls := 0
	fail := func() error { calls++; return errDown }

	assert.ErrorIs(t, b.Do("nats", fail), errDown)
	assert.ErrorIs(t, b.Do("nats", fail), errDown)
	assert.ErrorIs(t, b.Do("nats", fail), ErrOpen)
	assert.Equal(t, 2, calls, "open circuit must not call fn")

	clk.advance(time.Minute)
	assert.NoError(t, b.Do("nats", func() error { calls++; return nil }))
	assert.Equal(t, 3, calls)
	assert.Equal(t, StateClosed, b.State("nats"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
