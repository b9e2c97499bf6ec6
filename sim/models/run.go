package models

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/cpsim/sim"
)

// PowerChange is a sensor power transition.
type PowerChange struct {
	At sim.Time
	On bool
}

// PositionSample is the reply to a sun_position stimulus.
type PositionSample struct {
	At       sim.Time
	Position Vec3
}

// Report is everything observed while running a scenario.
type Report struct {
	Scenario  string
	Seed      int64
	Start     sim.Time
	End       sim.Time
	Telemetry []SampleReply
	Power     []PowerChange
	Positions []PositionSample
	Obc       *ObcStatus
	Pending   int
	State     map[string]json.RawMessage // final model state, by model name
}

// RunScenario builds a bench for sc, applies its stimuli in time order and
// advances the clock to sc.Until. The simulation is closed on return.
func RunScenario(sc *Scenario, opts ...sim.Option) (*Report, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	startOff, _ := parseOffset("start", sc.Start)
	untilOff, _ := parseOffset("until", sc.Until)
	start := sim.Epoch.Add(startOff)
	until := sim.Epoch.Add(untilOff)
	stimuli, err := sc.timedStimuli()
	if err != nil {
		return nil, err
	}

	cfg := sc.BenchConfig()
	b, err := NewBench(cfg, start, opts...)
	if err != nil {
		return nil, fmt.Errorf("building bench: %w", err)
	}
	defer b.Close()

	rep := &Report{Scenario: sc.Name, Seed: sc.Seed, Start: start}
	collectPower := func() {
		for _, p := range b.Power.Drain() {
			rep.Power = append(rep.Power, PowerChange{At: p.At, On: p.Value})
		}
	}

	for _, st := range stimuli {
		if err := b.Sim.StepUntil(sim.Epoch.Add(st.at)); err != nil {
			return nil, err
		}
		collectPower()
		logrus.Debugf("[t %s] stimulus %s", b.Sim.Time(), st.spec.Action)
		if err := applyStimulus(b, st.spec, rep); err != nil {
			return nil, fmt.Errorf("stimulus %s at %s: %w", st.spec.Action, st.spec.At, err)
		}
		collectPower()
	}
	if err := b.Sim.StepUntil(until); err != nil {
		return nil, err
	}
	collectPower()

	rep.End = b.Sim.Time()
	rep.Telemetry = b.Telemetry.Drain()
	rep.Pending = b.Sim.Pending()
	if !b.Obc.IsZero() {
		st, err := b.ObcStatus()
		if err != nil {
			return nil, err
		}
		rep.Obc = &st
	}
	if rep.State, err = b.Checkpoint(); err != nil {
		return nil, err
	}
	return rep, nil
}

func applyStimulus(b *Bench, st StimulusSpec, rep *Report) error {
	switch st.Action {
	case ActionVoltage:
		return b.SetVoltage(st.Value)
	case ActionCommand:
		return b.Command(SampleCommand{SrcAddress: st.Src, DestAddress: st.Dest})
	case ActionSunPosition:
		pos, err := b.SunPosition()
		if err != nil {
			return err
		}
		rep.Positions = append(rep.Positions, PositionSample{At: b.Sim.Time(), Position: pos})
		return nil
	case ActionStopSampling:
		return b.StopSampling()
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
}
