package models

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/cpsim/sim"
)

// PowerOnVoltage is the supply voltage at or above which the sun sensor is on.
const PowerOnVoltage = 5.0

// SampleCommand asks the sensor at DestAddress for a measurement.
type SampleCommand struct {
	SrcAddress  uint8
	DestAddress uint8
}

// SampleReply is a sun direction measurement in spherical angles (radians).
type SampleReply struct {
	SrcAddress     uint8
	DestAddress    uint8
	PolarAngle     float64
	AzimuthalAngle float64
	At             sim.Time
}

// Vec3 is a cartesian vector.
type Vec3 [3]float64

// ProtoSunSensor holds the wiring of a sun sensor. Connect its ports, then
// register it with RegisterProto(si, proto.Build, mb, name).
type ProtoSunSensor struct {
	Tm             *sim.Output[SampleReply]
	Power          *sim.Output[bool]
	SunPositionReq *sim.Requestor[struct{}, Vec3]

	address     uint8
	noiseStdDev float64
}

// NewProtoSunSensor creates a sensor prototype with unconnected ports.
func NewProtoSunSensor(address uint8, noiseStdDev float64) *ProtoSunSensor {
	return &ProtoSunSensor{
		Tm:             sim.NewOutput[SampleReply](),
		Power:          sim.NewOutput[bool](),
		SunPositionReq: &sim.Requestor[struct{}, Vec3]{},
		address:        address,
		noiseStdDev:    noiseStdDev,
	}
}

// SunSensorEnv is the sensor's measurement noise source. It is created at
// build time and never leaves the sensor.
type SunSensorEnv struct {
	noise  func() float64
	stdDev float64
}

// Build turns the prototype into a live sensor and its environment.
func (p *ProtoSunSensor) Build(bc *sim.BuildContext) (*SunSensor, *SunSensorEnv, error) {
	rng := bc.Rand()
	s := &SunSensor{
		Tm:             p.Tm,
		Power:          p.Power,
		SunPositionReq: p.SunPositionReq,
		address:        p.address,
	}
	return s, &SunSensorEnv{noise: rng.NormFloat64, stdDev: p.noiseStdDev}, nil
}

// SunSensor measures the sun direction on command while powered.
type SunSensor struct {
	Tm             *sim.Output[SampleReply]
	Power          *sim.Output[bool]
	SunPositionReq *sim.Requestor[struct{}, Vec3]

	voltage float64
	address uint8
	samples int
}

// VoltageIn sets the supply voltage and broadcasts on Power when the sensor
// switches on or off.
func (s *SunSensor) VoltageIn(v float64, cx *sim.Context) error {
	wasOn := s.voltage >= PowerOnVoltage
	isOn := v >= PowerOnVoltage
	s.voltage = v
	if wasOn == isOn {
		return nil
	}
	if isOn {
		logrus.Infof("[t %s] %s powered on (%.2f V)", cx.Now(), cx.Name(), v)
	} else {
		logrus.Infof("[t %s] %s powered off (%.2f V)", cx.Now(), cx.Name(), v)
	}
	return s.Power.Send(cx, isOn)
}

// Tc handles a telecommand. Commands for another address, or received while
// powered off, are ignored.
func (s *SunSensor) Tc(cmd SampleCommand, cx *sim.Context, env *SunSensorEnv) error {
	if s.voltage < PowerOnVoltage || cmd.DestAddress != s.address {
		logrus.Debugf("[t %s] %s ignored command for address %d", cx.Now(), cx.Name(), cmd.DestAddress)
		return nil
	}
	pos, err := s.SunPositionReq.Send(cx, struct{}{})
	if err != nil {
		return err
	}
	sph := CartesianToSpherical(pos)
	s.samples++
	return s.Tm.Send(cx, SampleReply{
		SrcAddress:     cmd.DestAddress,
		DestAddress:    cmd.SrcAddress,
		PolarAngle:     sph[1] + env.noise()*env.stdDev,
		AzimuthalAngle: sph[2],
		At:             cx.Now(),
	})
}

// Powered reports whether the sensor is on.
func (s *SunSensor) Powered(_ struct{}) bool { return s.voltage >= PowerOnVoltage }

// CartesianToSpherical converts [x, y, z] to [r, polar, azimuthal].
func CartesianToSpherical(v Vec3) Vec3 {
	r := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if r == 0 {
		return Vec3{}
	}
	polar := math.Acos(v[2] / r)
	if polar == 0 {
		return Vec3{r, 0, 0}
	}
	xy := math.Sqrt(v[0]*v[0] + v[1]*v[1])
	azimuthal := math.Acos(v[0] / xy)
	if v[1] < 0 {
		azimuthal = -azimuthal
	}
	return Vec3{r, polar, azimuthal}
}
