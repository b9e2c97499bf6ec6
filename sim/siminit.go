package sim

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/cpsim/sim/trace"
)

const stimulusInit = "init"

// SimInit collects models before the simulation starts. Ports may be wired
// freely until Init is called; Init seals every port the registered models
// and their environments hold.
type SimInit struct {
	models      []*mailbox
	names       map[string]bool
	rng         *PartitionedRNG
	recorder    trace.Recorder
	initialized bool
}

// Option configures a SimInit.
type Option func(*SimInit)

// WithSeed sets the master seed from which every model's build-time RNG is
// derived. The default seed is 0.
func WithSeed(seed int64) Option {
	return func(si *SimInit) {
		si.rng = NewPartitionedRNG(NewSimulationKey(seed))
	}
}

// WithRecorder sends a record of every kernel action to r.
func WithRecorder(r trace.Recorder) Option {
	return func(si *SimInit) {
		si.recorder = r
	}
}

// NewSimInit creates an empty SimInit.
func NewSimInit(opts ...Option) *SimInit {
	si := &SimInit{
		names: make(map[string]bool),
		rng:   NewPartitionedRNG(NewSimulationKey(0)),
	}
	for _, opt := range opts {
		opt(si)
	}
	return si
}

// Register adds model m with its mailbox under a unique name and returns the
// model's address.
func Register[M any](si *SimInit, m M, mb *Mailbox[M], name string) (Address[M], error) {
	if err := si.check(mb, name); err != nil {
		return Address[M]{}, err
	}
	si.commit(&mb.core, name, m, nil)
	return mb.Address(), nil
}

// RegisterProto builds a model from its prototype and registers it like
// Register. build runs once, here, and returns the live model together with
// its private environment, which is only reachable from handlers wrapped
// with WithEnv or QueryWithEnv.
func RegisterProto[M, E any](si *SimInit, build func(bc *BuildContext) (M, E, error), mb *Mailbox[M], name string) (Address[M], error) {
	if err := si.check(mb, name); err != nil {
		return Address[M]{}, err
	}
	m, env, err := build(&BuildContext{name: name, si: si})
	if err != nil {
		return Address[M]{}, errors.Wrapf(err, "building model %q", name)
	}
	si.commit(&mb.core, name, m, env)
	return mb.Address(), nil
}

func (si *SimInit) check(mb interface{ registered() *mailbox }, name string) error {
	if si.initialized {
		return errors.Wrapf(ErrAlreadyInitialized, "register %q", name)
	}
	if name == "" {
		return errors.New("model name must not be empty")
	}
	if si.names[name] {
		return errors.Wrapf(ErrDuplicateAddress, "name %q already registered", name)
	}
	if core := mb.registered(); core == nil {
		return errors.Errorf("register %q: nil mailbox", name)
	} else if core.owner != nil {
		return errors.Wrapf(ErrDuplicateAddress, "mailbox already registered as %q", core.name)
	}
	return nil
}

func (si *SimInit) commit(mb *mailbox, name string, model, env any) {
	mb.name = name
	mb.model = model
	mb.env = env
	mb.owner = si
	si.names[name] = true
	si.models = append(si.models, mb)
}

// Init starts the simulation at start: every model's init hook runs, in
// registration order, followed by every event they scheduled at start.
// A SimInit can only be initialized once.
func (si *SimInit) Init(start Time) (*Simulation, error) {
	if si.initialized {
		return nil, errors.Wrap(ErrAlreadyInitialized, "init")
	}
	si.initialized = true

	s := &Simulation{
		clock:    Clock{now: start},
		models:   si.models,
		state:    StateInitialized,
		recorder: si.recorder,
	}
	for _, mb := range s.models {
		mb.sim = s
		sealPorts(mb.model)
		sealPorts(mb.env)
	}

	err := s.stimulus(stimulusInit, func() error {
		for _, mb := range s.models {
			hook, ok := mb.model.(Initializer)
			if !ok {
				continue
			}
			d := delivery{source: stimulusInit, run: func(cx *Context) error { return hook.Init(cx) }}
			if err := s.deliverEvent(mb, d); err != nil {
				return err
			}
		}
		return s.runUntil(start)
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	logrus.Infof("[t %s] Simulation initialized with %d models", start, len(s.models))
	return s, nil
}

// BuildContext is passed to prototype build functions.
type BuildContext struct {
	name string
	si   *SimInit
}

// Name returns the name the model is being registered under.
func (bc *BuildContext) Name() string { return bc.name }

// Rand returns the model's private RNG, seeded from the SimInit seed and the
// model name.
func (bc *BuildContext) Rand() *rand.Rand {
	return bc.si.rng.ForSubsystem(SubsystemModel(bc.name))
}
