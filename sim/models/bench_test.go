package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/cpsim/sim"
	"github.com/inference-sim/cpsim/sim/trace"
)

func TestBench_ObcRequestReplyChain(t *testing.T) {
	// GIVEN an OBC commanding the sensor every 10s, with the sensor powered
	cfg := DefaultBenchConfig()
	cfg.SamplePeriod = 10 * time.Second
	cfg.NoiseStdDev = 0
	b, err := NewBench(cfg, sim.Epoch)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.PowerOn())

	// WHEN stepping to just before 10s THEN nothing is observed
	require.NoError(t, b.Sim.StepUntil(sim.Epoch.Add(9*time.Second)))
	assert.Equal(t, 0, b.Telemetry.Len())

	// WHEN stepping to 10s THEN exactly one reply computed at 10s is observed
	require.NoError(t, b.Sim.StepUntil(secs(10)))
	replies := b.Telemetry.Drain()
	require.Len(t, replies, 1)
	assert.Equal(t, secs(10), replies[0].At)
	want := CartesianToSpherical(Vec3{59.3, 11, 13})
	assert.InDelta(t, want[1], replies[0].PolarAngle, 1e-12)

	// AND the OBC received it back
	st, err := b.ObcStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Sent)
	assert.Equal(t, 1, st.Received)
	require.NotNil(t, st.Last)
	assert.Equal(t, uint8(0), st.Last.DestAddress)
}

func TestBench_PeriodicSampling(t *testing.T) {
	// GIVEN the reference bench, powered
	b, err := NewBench(DefaultBenchConfig(), sim.Epoch)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.PowerOn())

	// WHEN run to 10s THEN there were ten commands and ten replies
	require.NoError(t, b.Sim.StepUntil(secs(10)))
	assert.Equal(t, 10, b.Telemetry.Len())
	st, err := b.ObcStatus()
	require.NoError(t, err)
	assert.Equal(t, 10, st.Sent)
	assert.Equal(t, 10, st.Received)

	// WHEN sampling stops THEN no further commands are sent
	require.NoError(t, b.StopSampling())
	require.NoError(t, b.Sim.StepUntil(secs(20)))
	st, err = b.ObcStatus()
	require.NoError(t, err)
	assert.Equal(t, 10, st.Sent)
}

func TestBench_StoppedBeforeFirstSample(t *testing.T) {
	b, err := NewBench(DefaultBenchConfig(), sim.Epoch)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.PowerOn())

	require.NoError(t, b.Sim.StepUntil(sim.Epoch.Add(500*time.Millisecond)))
	require.NoError(t, b.StopSampling())
	require.NoError(t, b.Sim.StepUntil(secs(10)))

	st, err := b.ObcStatus()
	require.NoError(t, err)
	assert.Equal(t, 0, st.Sent)
	assert.Equal(t, 0, b.Telemetry.Len())
}

func TestBench_UnpoweredSensorIgnoresObc(t *testing.T) {
	b, err := NewBench(DefaultBenchConfig(), sim.Epoch)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Sim.StepUntil(secs(3)))
	st, err := b.ObcStatus()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Sent)
	assert.Equal(t, 0, st.Received)
	assert.Nil(t, st.Last)
}

func TestBench_WithoutObc(t *testing.T) {
	cfg := DefaultBenchConfig()
	cfg.DisableObc = true
	b, err := NewBench(cfg, sim.Epoch)
	require.NoError(t, err)
	defer b.Close()

	assert.True(t, b.Obc.IsZero())
	_, err = b.ObcStatus()
	assert.Error(t, err)
	assert.Error(t, b.StopSampling())
}

func TestNewBench_InvalidConfig(t *testing.T) {
	cfg := DefaultBenchConfig()
	cfg.SamplePeriod = 0
	_, err := NewBench(cfg, sim.Epoch)
	assert.Error(t, err)

	cfg = DefaultBenchConfig()
	cfg.NoiseStdDev = -1
	_, err = NewBench(cfg, sim.Epoch)
	assert.Error(t, err)
}

func TestBench_TelemetryLimit(t *testing.T) {
	cfg := DefaultBenchConfig()
	cfg.TelemetryLimit = 3
	b, err := NewBench(cfg, sim.Epoch)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.PowerOn())

	require.NoError(t, b.Sim.StepUntil(secs(10)))
	replies := b.Telemetry.Drain()
	require.Len(t, replies, 3)
	assert.Equal(t, secs(8), replies[0].At)
	assert.Equal(t, secs(10), replies[2].At)
}

func TestBench_DeterministicTrace(t *testing.T) {
	run := func() ([]SampleReply, []trace.Record) {
		rec := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelAll})
		cfg := DefaultBenchConfig()
		cfg.Seed = 99
		b, err := NewBench(cfg, sim.Epoch, sim.WithRecorder(rec))
		require.NoError(t, err)
		defer b.Close()
		require.NoError(t, b.PowerOn())
		require.NoError(t, b.Sim.StepUntil(secs(5)))
		return b.Telemetry.Drain(), rec.Records
	}

	tm1, tr1 := run()
	tm2, tr2 := run()
	require.Len(t, tm1, 5)
	assert.Equal(t, tm1, tm2)
	assert.Equal(t, tr1, tr2)

	// the sensor's reply to the OBC arrives while the OBC is still busy
	// commanding, so it is parked and delivered afterwards
	summary := trace.Summarize(tr1)
	assert.Equal(t, 5, summary.ByKind[trace.KindDeferred])
	assert.Equal(t, 5, summary.ByKind[trace.KindQuery])
}
