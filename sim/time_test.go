package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTime(t *testing.T) {
	tests := []struct {
		name    string
		secs    int64
		nanos   int64
		want    Time
		wantErr bool
	}{
		{"epoch", 0, 0, Epoch, false},
		{"ten seconds", 10, 0, Time(10 * time.Second), false},
		{"sub-second", 1, 500, Time(time.Second + 500), false},
		{"nanos overflow", 1, int64(time.Second), 0, true},
		{"negative nanos", 1, -1, 0, true},
		{"negative secs", -1, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewTime(tt.secs, tt.nanos)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTime_Arithmetic(t *testing.T) {
	t0 := Epoch.Add(3 * time.Second)
	t1 := t0.Add(250 * time.Millisecond)

	assert.Equal(t, 250*time.Millisecond, t1.Sub(t0))
	assert.True(t, t0.Before(t1))
	assert.True(t, t1.After(t0))
	assert.InDelta(t, 3.25, t1.Seconds(), 1e-12)
	assert.Equal(t, "3.250000000s", t1.String())
}

func TestClock_Advance(t *testing.T) {
	// GIVEN a clock at 5s
	c := Clock{now: Epoch.Add(5 * time.Second)}

	// WHEN moved back to 4s THEN it fails and stays at 5s
	err := c.advance(Epoch.Add(4 * time.Second))
	assert.ErrorIs(t, err, ErrPastScheduling)
	assert.Equal(t, Epoch.Add(5*time.Second), c.Now())

	// WHEN moved to the same instant or later THEN it succeeds
	require.NoError(t, c.advance(Epoch.Add(5*time.Second)))
	require.NoError(t, c.advance(Epoch.Add(6*time.Second)))
	assert.Equal(t, Epoch.Add(6*time.Second), c.Now())
}
