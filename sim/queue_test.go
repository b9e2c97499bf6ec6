package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAction(at Time, label string) *action {
	return &action{at: at, delivery: delivery{payload: label}, key: &ActionKey{}}
}

func popLabels(eq *eventQueue, until Time) []string {
	var out []string
	for a := eq.popDue(until); a != nil; a = eq.popDue(until) {
		out = append(out, a.payload.(string))
	}
	return out
}

// TestEventQueue_TimestampOrdering tests that actions pop in due-time order
func TestEventQueue_TimestampOrdering(t *testing.T) {
	var eq eventQueue
	eq.push(newTestAction(150, "c"))
	eq.push(newTestAction(50, "a"))
	eq.push(newTestAction(100, "b"))

	assert.Equal(t, []string{"a", "b", "c"}, popLabels(&eq, MaxTime))
	assert.Equal(t, 0, eq.len())
}

// TestEventQueue_FIFOTieBreak tests that equal due times pop in insertion order
func TestEventQueue_FIFOTieBreak(t *testing.T) {
	var eq eventQueue
	for _, l := range []string{"first", "second", "third", "fourth"} {
		eq.push(newTestAction(100, l))
	}
	eq.push(newTestAction(10, "early"))

	assert.Equal(t, []string{"early", "first", "second", "third", "fourth"}, popLabels(&eq, MaxTime))
}

func TestEventQueue_PopDueRespectsBound(t *testing.T) {
	var eq eventQueue
	eq.push(newTestAction(10, "a"))
	eq.push(newTestAction(20, "b"))

	assert.Equal(t, []string{"a"}, popLabels(&eq, 15))
	require.NotNil(t, eq.peek())
	assert.Equal(t, Time(20), eq.peek().at)
}

func TestEventQueue_SkipsCancelled(t *testing.T) {
	var eq eventQueue
	a := newTestAction(10, "a")
	b := newTestAction(10, "b")
	eq.push(a)
	eq.push(b)
	a.key.cancelled = true

	assert.Equal(t, []string{"b"}, popLabels(&eq, MaxTime))
	assert.Nil(t, eq.peek())
}

func TestActionKey_NilSafe(t *testing.T) {
	var k *ActionKey
	k.Cancel()
	assert.False(t, k.Cancelled())
}
