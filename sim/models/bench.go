package models

import (
	"fmt"
	"time"

	"github.com/inference-sim/cpsim/sim"
)

// Model names used by the bench.
const (
	SensorName   = "SUN_SENSOR"
	DynamicsName = "DYNAMICS"
	ObcName      = "OBC"
)

// BenchConfig sizes the sun-sensor test bench.
type BenchConfig struct {
	ObcAddress     uint8
	SensorAddress  uint8
	SamplePeriod   time.Duration
	NoiseStdDev    float64
	DisableObc     bool // leave the OBC out; the sensor is then only driven by stimuli
	Seed           int64
	TelemetryLimit int // 0 keeps every reply
}

// DefaultBenchConfig returns the reference bench: OBC at address 0 sampling
// the sensor at address 1 every second, with 0.1 rad of polar noise.
func DefaultBenchConfig() BenchConfig {
	return BenchConfig{
		ObcAddress:    0,
		SensorAddress: 1,
		SamplePeriod:  time.Second,
		NoiseStdDev:   0.1,
	}
}

// Bench is an initialized sun-sensor simulation and the sinks observing it.
type Bench struct {
	Sim *sim.Simulation

	Sensor   sim.Address[*SunSensor]
	Dynamics sim.Address[*Dynamics]
	Obc      sim.Address[*Obc] // zero if DisableObc

	Telemetry *sim.EventBuffer[SampleReply]
	Power     *sim.EventBuffer[sim.Timed[bool]]
}

// NewBench wires and initializes the bench at start. Extra options, such as a
// trace recorder, are passed to the SimInit.
func NewBench(cfg BenchConfig, start sim.Time, opts ...sim.Option) (*Bench, error) {
	if !cfg.DisableObc && cfg.SamplePeriod <= 0 {
		return nil, fmt.Errorf("sample period must be positive, got %s", cfg.SamplePeriod)
	}
	if cfg.NoiseStdDev < 0 {
		return nil, fmt.Errorf("noise stddev must be non-negative, got %f", cfg.NoiseStdDev)
	}

	dynamicsMb := sim.NewMailbox[*Dynamics]()
	sensorMb := sim.NewMailbox[*SunSensor]()
	obcMb := sim.NewMailbox[*Obc]()

	b := &Bench{Power: sim.NewEventBuffer[sim.Timed[bool]]()}
	if cfg.TelemetryLimit > 0 {
		b.Telemetry = sim.NewBoundedEventBuffer[SampleReply](cfg.TelemetryLimit)
	} else {
		b.Telemetry = sim.NewEventBuffer[SampleReply]()
	}

	proto := NewProtoSunSensor(cfg.SensorAddress, cfg.NoiseStdDev)
	if err := sim.ConnectRequestor(proto.SunPositionReq, (*Dynamics).SunPosition, dynamicsMb.Address()); err != nil {
		return nil, err
	}
	if err := proto.Tm.ConnectSink(b.Telemetry); err != nil {
		return nil, err
	}
	if err := proto.Power.ConnectTimedSink(b.Power); err != nil {
		return nil, err
	}

	opts = append([]sim.Option{sim.WithSeed(cfg.Seed)}, opts...)
	si := sim.NewSimInit(opts...)

	var err error
	if b.Sensor, err = sim.RegisterProto(si, proto.Build, sensorMb, SensorName); err != nil {
		return nil, err
	}
	if b.Dynamics, err = sim.Register(si, &Dynamics{}, dynamicsMb, DynamicsName); err != nil {
		return nil, err
	}
	if !cfg.DisableObc {
		obc := NewObc(cfg.ObcAddress, cfg.SensorAddress, cfg.SamplePeriod)
		if err := sim.Connect(obc.Tm, sim.WithEnv((*SunSensor).Tc), sensorMb.Address()); err != nil {
			return nil, err
		}
		if err := sim.Connect(proto.Tm, (*Obc).Telemetry, obcMb.Address()); err != nil {
			return nil, err
		}
		if b.Obc, err = sim.Register(si, obc, obcMb, ObcName); err != nil {
			return nil, err
		}
	}

	if b.Sim, err = si.Init(start); err != nil {
		return nil, err
	}
	return b, nil
}

// PowerOn sets the sensor supply to the nominal voltage.
func (b *Bench) PowerOn() error {
	return b.SetVoltage(PowerOnVoltage)
}

// SetVoltage sets the sensor supply voltage now.
func (b *Bench) SetVoltage(v float64) error {
	return sim.ProcessEvent(b.Sim, (*SunSensor).VoltageIn, v, b.Sensor)
}

// Command sends a sample command straight to the sensor, bypassing the OBC.
func (b *Bench) Command(cmd SampleCommand) error {
	return sim.ProcessEvent(b.Sim, sim.WithEnv((*SunSensor).Tc), cmd, b.Sensor)
}

// SunPosition queries the dynamics model directly.
func (b *Bench) SunPosition() (Vec3, error) {
	return sim.ProcessQuery(b.Sim, (*Dynamics).SunPosition, struct{}{}, b.Dynamics)
}

// Powered queries the sensor's power state.
func (b *Bench) Powered() (bool, error) {
	return sim.ProcessQuery(b.Sim, sim.PlainQuery((*SunSensor).Powered), struct{}{}, b.Sensor)
}

// ObcStatus queries the OBC counters. It fails if the bench has no OBC.
func (b *Bench) ObcStatus() (ObcStatus, error) {
	if b.Obc.IsZero() {
		return ObcStatus{}, fmt.Errorf("bench has no OBC")
	}
	return sim.ProcessQuery(b.Sim, (*Obc).Status, struct{}{}, b.Obc)
}

// StopSampling cancels the OBC's periodic command.
func (b *Bench) StopSampling() error {
	if b.Obc.IsZero() {
		return fmt.Errorf("bench has no OBC")
	}
	return sim.ProcessEvent(b.Sim, (*Obc).StopSampling, struct{}{}, b.Obc)
}

// Close terminates the simulation.
func (b *Bench) Close() error {
	return b.Sim.Close()
}
