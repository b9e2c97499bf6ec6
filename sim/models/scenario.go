package models

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed scenario.schema.json
var scenarioSchemaJSON string

const scenarioSchemaURL = "scenario.schema.json"

// Stimulus actions.
const (
	ActionVoltage      = "voltage"
	ActionCommand      = "command"
	ActionSunPosition  = "sun_position"
	ActionStopSampling = "stop_sampling"
)

// Scenario drives a bench from a YAML file. Durations are Go duration
// strings measured from the epoch.
type Scenario struct {
	Name           string         `yaml:"name"`
	Seed           int64          `yaml:"seed"`
	Start          string         `yaml:"start"`
	Until          string         `yaml:"until"`
	Sensor         SensorConfig   `yaml:"sensor"`
	Obc            ObcConfig      `yaml:"obc"`
	TelemetryLimit int            `yaml:"telemetry_limit"`
	Stimuli        []StimulusSpec `yaml:"stimuli"`
}

// SensorConfig holds sun sensor settings. Nil fields take bench defaults.
type SensorConfig struct {
	Address     *uint8   `yaml:"address"`
	NoiseStdDev *float64 `yaml:"noise_stddev"`
}

// ObcConfig holds on-board computer settings. Nil fields take bench defaults.
type ObcConfig struct {
	Enabled      *bool  `yaml:"enabled"`
	Address      *uint8 `yaml:"address"`
	SamplePeriod string `yaml:"sample_period"`
}

// StimulusSpec is one externally injected action.
type StimulusSpec struct {
	At     string  `yaml:"at"`
	Action string  `yaml:"action"`
	Value  float64 `yaml:"value"`
	Src    uint8   `yaml:"src"`
	Dest   uint8   `yaml:"dest"`
}

// LoadScenario reads, schema-checks and parses a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario schema-checks and parses YAML scenario data.
func ParseScenario(data []byte) (*Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &sc, nil
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// scenarioSchema compiles the embedded schema on first use; parsing is safe
// from concurrent goroutines.
func scenarioSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(scenarioSchemaURL, strings.NewReader(scenarioSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("loading scenario schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(scenarioSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compiling scenario schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// validateSchema checks a decoded YAML document against the embedded schema.
// The document goes through JSON first so numbers and maps have the shapes
// the validator expects.
func validateSchema(doc any) error {
	s, err := scenarioSchema()
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("scenario is empty")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("scenario is not representable as JSON: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("re-reading scenario: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}
	return nil
}

// Validate checks values the schema cannot express.
func (sc *Scenario) Validate() error {
	start, err := parseOffset("start", sc.Start)
	if err != nil {
		return err
	}
	until, err := parseOffset("until", sc.Until)
	if err != nil {
		return err
	}
	if until < start {
		return fmt.Errorf("until %s is before start %s", sc.Until, sc.Start)
	}
	if _, err := parseOffset("obc.sample_period", sc.Obc.SamplePeriod); err != nil {
		return err
	}
	if sc.Obc.SamplePeriod != "" {
		if p, _ := time.ParseDuration(sc.Obc.SamplePeriod); p <= 0 {
			return fmt.Errorf("obc.sample_period must be positive, got %s", sc.Obc.SamplePeriod)
		}
	}
	for i, st := range sc.Stimuli {
		at, err := parseOffset(fmt.Sprintf("stimuli[%d].at", i), st.At)
		if err != nil {
			return err
		}
		if at < start || at > until {
			return fmt.Errorf("stimuli[%d].at %s is outside [%s, %s]", i, st.At, sc.Start, sc.Until)
		}
		switch st.Action {
		case ActionVoltage, ActionCommand, ActionSunPosition:
		case ActionStopSampling:
			if sc.Obc.Enabled != nil && !*sc.Obc.Enabled {
				return fmt.Errorf("stimuli[%d]: stop_sampling needs the OBC", i)
			}
		default:
			return fmt.Errorf("stimuli[%d]: unknown action %q", i, st.Action)
		}
	}
	return nil
}

// BenchConfig resolves the bench settings, starting from DefaultBenchConfig.
func (sc *Scenario) BenchConfig() BenchConfig {
	cfg := DefaultBenchConfig()
	cfg.Seed = sc.Seed
	cfg.TelemetryLimit = sc.TelemetryLimit
	if sc.Sensor.Address != nil {
		cfg.SensorAddress = *sc.Sensor.Address
	}
	if sc.Sensor.NoiseStdDev != nil {
		cfg.NoiseStdDev = *sc.Sensor.NoiseStdDev
	}
	if sc.Obc.Enabled != nil {
		cfg.DisableObc = !*sc.Obc.Enabled
	}
	if sc.Obc.Address != nil {
		cfg.ObcAddress = *sc.Obc.Address
	}
	if p, err := time.ParseDuration(sc.Obc.SamplePeriod); err == nil && sc.Obc.SamplePeriod != "" {
		cfg.SamplePeriod = p
	}
	return cfg
}

// timedStimuli returns the stimuli with parsed offsets, ordered by time.
// Stimuli at the same offset keep their file order.
func (sc *Scenario) timedStimuli() ([]timedStimulus, error) {
	out := make([]timedStimulus, 0, len(sc.Stimuli))
	for i, st := range sc.Stimuli {
		at, err := parseOffset(fmt.Sprintf("stimuli[%d].at", i), st.At)
		if err != nil {
			return nil, err
		}
		out = append(out, timedStimulus{at: at, spec: st})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at < out[j].at })
	return out, nil
}

type timedStimulus struct {
	at   time.Duration
	spec StimulusSpec
}

func parseOffset(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", field, s)
	}
	return d, nil
}
