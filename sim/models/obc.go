package models

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/cpsim/sim"
)

// ObcStatus is a snapshot of the on-board computer's counters.
type ObcStatus struct {
	Sent     int
	Received int
	Last     *SampleReply
}

// Obc is the on-board computer. From its init hook it commands the sensor
// every period and it collects the replies sent back to its address.
type Obc struct {
	Tm *sim.Output[SampleCommand]

	address       uint8
	sensorAddress uint8
	period        time.Duration

	key    *sim.ActionKey
	status ObcStatus
}

// NewObc creates an on-board computer that samples the sensor at
// sensorAddress every period.
func NewObc(address, sensorAddress uint8, period time.Duration) *Obc {
	return &Obc{
		Tm:            sim.NewOutput[SampleCommand](),
		address:       address,
		sensorAddress: sensorAddress,
		period:        period,
	}
}

func (o *Obc) Init(cx *sim.Context) error {
	key, err := sim.SchedulePeriodicEvent(cx, cx.Now().Add(o.period), o.period, (*Obc).sendSampleCommand, struct{}{})
	if err != nil {
		return err
	}
	o.key = key
	return nil
}

func (o *Obc) sendSampleCommand(_ struct{}, cx *sim.Context) error {
	o.status.Sent++
	return o.Tm.Send(cx, SampleCommand{SrcAddress: o.address, DestAddress: o.sensorAddress})
}

// Telemetry accepts a sensor reply. Replies for another address are dropped.
func (o *Obc) Telemetry(r SampleReply, cx *sim.Context) error {
	if r.DestAddress != o.address {
		return nil
	}
	o.status.Received++
	last := r
	o.status.Last = &last
	logrus.Debugf("[t %s] %s received sample polar=%.4f azimuthal=%.4f", cx.Now(), cx.Name(), r.PolarAngle, r.AzimuthalAngle)
	return nil
}

// StopSampling cancels the periodic command.
func (o *Obc) StopSampling(_ struct{}, cx *sim.Context) error {
	o.key.Cancel()
	logrus.Infof("[t %s] %s stopped sampling after %d commands", cx.Now(), cx.Name(), o.status.Sent)
	return nil
}

// Status returns a copy of the counters.
func (o *Obc) Status(_ struct{}, _ *sim.Context) (ObcStatus, error) {
	st := o.status
	if st.Last != nil {
		last := *st.Last
		st.Last = &last
	}
	return st, nil
}
