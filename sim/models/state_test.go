package models

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_CapturesModelState(t *testing.T) {
	// GIVEN a powered bench sampled three times
	cfg := DefaultBenchConfig()
	cfg.NoiseStdDev = 0
	b, err := NewBench(cfg, secs(0))
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.PowerOn())
	require.NoError(t, b.Sim.StepUntil(secs(3)))

	// WHEN checkpointed
	cp, err := b.Checkpoint()
	require.NoError(t, err)

	// THEN the sensor and OBC state is captured
	var sensor SunSensorState
	require.NoError(t, json.Unmarshal(cp[SensorName], &sensor))
	assert.Equal(t, SunSensorState{Voltage: PowerOnVoltage, Address: 1, Samples: 3}, sensor)

	var obc ObcState
	require.NoError(t, json.Unmarshal(cp[ObcName], &obc))
	assert.True(t, obc.Sampling)
	assert.Equal(t, 3, obc.Sent)
	assert.Equal(t, 3, obc.Received)
	assert.Equal(t, "1s", obc.Period)
	require.NotNil(t, obc.Last)
	assert.Equal(t, secs(3), obc.Last.At)

	// AND a stopped OBC reports it is no longer sampling
	require.NoError(t, b.StopSampling())
	cp, err = b.Checkpoint()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(cp[ObcName], &obc))
	assert.False(t, obc.Sampling)
}

func TestSunSensor_RestoreKeepsPorts(t *testing.T) {
	proto := NewProtoSunSensor(1, 0)
	s := &SunSensor{Tm: proto.Tm, Power: proto.Power, SunPositionReq: proto.SunPositionReq}

	require.NoError(t, json.Unmarshal([]byte(`{"voltage":5.5,"address":4,"samples":9}`), s))

	assert.True(t, s.Powered(struct{}{}))
	assert.Equal(t, uint8(4), s.address)
	assert.Equal(t, 9, s.samples)
	assert.Same(t, proto.Tm, s.Tm)

	assert.Error(t, json.Unmarshal([]byte(`{"voltage":"high"}`), s))
}

func TestObc_RestoreCounters(t *testing.T) {
	o := NewObc(0, 1, 0)
	data := []byte(`{"address":2,"sensor_address":3,"period":"250ms","sent":7,"received":6}`)
	require.NoError(t, json.Unmarshal(data, o))

	st, err := o.Status(struct{}{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ObcStatus{Sent: 7, Received: 6}, st)
	assert.Equal(t, "250ms", o.period.String())

	assert.Error(t, json.Unmarshal([]byte(`{"period":"soon"}`), o))
}

func TestRunScenario_ReportsFinalState(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "power_on.yaml"))
	require.NoError(t, err)

	rep, err := RunScenario(sc)
	require.NoError(t, err)

	var sensor SunSensorState
	require.NoError(t, json.Unmarshal(rep.State[SensorName], &sensor))
	assert.Equal(t, 10, sensor.Samples)
	var obc ObcState
	require.NoError(t, json.Unmarshal(rep.State[ObcName], &obc))
	assert.False(t, obc.Sampling)
}
