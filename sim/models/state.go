package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/inference-sim/cpsim/sim"
)

// SunSensorState is the serialized form of a SunSensor.
type SunSensorState struct {
	Voltage float64 `json:"voltage"`
	Address uint8   `json:"address"`
	Samples int     `json:"samples"`
}

// MarshalJSON encodes the sensor's state; its ports are wiring, not state.
func (s *SunSensor) MarshalJSON() ([]byte, error) {
	return json.Marshal(SunSensorState{Voltage: s.voltage, Address: s.address, Samples: s.samples})
}

// UnmarshalJSON restores state written by MarshalJSON, keeping the ports.
func (s *SunSensor) UnmarshalJSON(data []byte) error {
	var st SunSensorState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decoding sun sensor state: %w", err)
	}
	s.voltage, s.address, s.samples = st.Voltage, st.Address, st.Samples
	return nil
}

// ObcState is the serialized form of an Obc. Sampling records whether the
// periodic command was still scheduled; restoring it does not reschedule.
type ObcState struct {
	Address       uint8        `json:"address"`
	SensorAddress uint8        `json:"sensor_address"`
	Period        string       `json:"period"`
	Sampling      bool         `json:"sampling"`
	Sent          int          `json:"sent"`
	Received      int          `json:"received"`
	Last          *SampleReply `json:"last,omitempty"`
}

// MarshalJSON encodes the OBC's configuration and counters.
func (o *Obc) MarshalJSON() ([]byte, error) {
	return json.Marshal(ObcState{
		Address:       o.address,
		SensorAddress: o.sensorAddress,
		Period:        o.period.String(),
		Sampling:      o.key != nil && !o.key.Cancelled(),
		Sent:          o.status.Sent,
		Received:      o.status.Received,
		Last:          o.status.Last,
	})
}

// UnmarshalJSON restores state written by MarshalJSON.
func (o *Obc) UnmarshalJSON(data []byte) error {
	var st ObcState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decoding obc state: %w", err)
	}
	period, err := time.ParseDuration(st.Period)
	if err != nil {
		return fmt.Errorf("decoding obc period: %w", err)
	}
	o.address, o.sensorAddress, o.period = st.Address, st.SensorAddress, period
	o.status = ObcStatus{Sent: st.Sent, Received: st.Received, Last: st.Last}
	return nil
}

// snapshot is a query handler answering with the model's serialized state,
// so state is read by the kernel's dispatch like any other query.
func snapshot[M json.Marshaler](m M, _ struct{}, _ *sim.Context) (json.RawMessage, error) {
	return m.MarshalJSON()
}

// Checkpoint returns the serialized state of every stateful model on the
// bench, keyed by model name.
func (b *Bench) Checkpoint() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, 2)
	st, err := sim.ProcessQuery(b.Sim, snapshot[*SunSensor], struct{}{}, b.Sensor)
	if err != nil {
		return nil, fmt.Errorf("checkpointing %s: %w", SensorName, err)
	}
	out[SensorName] = st
	if !b.Obc.IsZero() {
		if st, err = sim.ProcessQuery(b.Sim, snapshot[*Obc], struct{}{}, b.Obc); err != nil {
			return nil, fmt.Errorf("checkpointing %s: %w", ObcName, err)
		}
		out[ObcName] = st
	}
	return out, nil
}
