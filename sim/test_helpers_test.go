package sim

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// at returns the instant n seconds after Epoch.
func at(n int64) Time {
	return Epoch.Add(time.Duration(n) * time.Second)
}

// node is the model used throughout the kernel tests. Everything it observes
// is reported, prefixed with its name, on Out.
type node struct {
	name string
	Out  *Output[string]
	Fwd  *Output[string]
	Req  *Requestor[string, string]

	key   *ActionKey
	fired int
}

func newNode(name string) *node {
	return &node{
		name: name,
		Out:  NewOutput[string](),
		Fwd:  NewOutput[string](),
		Req:  &Requestor[string, string]{},
	}
}

func (p *node) Note(v string, cx *Context) error {
	return p.Out.Send(cx, p.name+":"+v)
}

// Relay reports start and end around a forward on Fwd.
func (p *node) Relay(v string, cx *Context) error {
	if err := p.Out.Send(cx, p.name+":start"); err != nil {
		return err
	}
	if err := p.Fwd.Send(cx, v); err != nil {
		return err
	}
	return p.Out.Send(cx, p.name+":end")
}

// Ask issues a request and reports the reply.
func (p *node) Ask(v string, cx *Context) error {
	reply, err := p.Req.Send(cx, v)
	if err != nil {
		return err
	}
	return p.Out.Send(cx, p.name+":"+reply)
}

// Echo replies with the request and the time it was answered.
func (p *node) Echo(v string, cx *Context) (string, error) {
	return fmt.Sprintf("%s@%s", v, cx.Now()), nil
}

// Chain answers by forwarding the request through its own requestor.
func (p *node) Chain(v string, cx *Context) (string, error) {
	return p.Req.Send(cx, v)
}

// NotifyAndAck forwards the request as an event before replying.
func (p *node) NotifyAndAck(v string, cx *Context) (string, error) {
	if err := p.Fwd.Send(cx, v); err != nil {
		return "", err
	}
	return "ack", nil
}

func (p *node) Tick(_ struct{}, cx *Context) error {
	p.fired++
	return p.Out.Send(cx, fmt.Sprintf("%s:tick@%s", p.name, cx.Now()))
}

func (p *node) Boom(_ string, _ *Context) error {
	panic("boom")
}

func (p *node) Fail(v string, _ *Context) error {
	return fmt.Errorf("model failure: %s", v)
}

// ticker fires Tick every second from its init hook until stopped.
type ticker struct {
	*node
}

func (k *ticker) Init(cx *Context) error {
	key, err := SchedulePeriodicEvent(cx, cx.Now().Add(time.Second), time.Second, (*ticker).Tick, struct{}{})
	k.key = key
	return err
}

func (k *ticker) Tick(in struct{}, cx *Context) error {
	return k.node.Tick(in, cx)
}

func (k *ticker) Stop(_ struct{}, _ *Context) error {
	k.key.Cancel()
	return nil
}

// register registers p under its own name and fails the test on error.
func register(t *testing.T, si *SimInit, p *node, mb *Mailbox[*node]) Address[*node] {
	t.Helper()
	addr, err := Register(si, p, mb, p.name)
	require.NoError(t, err)
	return addr
}

// observe connects every node's Out to one shared buffer.
func observe(t *testing.T, nodes ...*node) *EventBuffer[string] {
	t.Helper()
	buf := NewEventBuffer[string]()
	for _, p := range nodes {
		require.NoError(t, p.Out.ConnectSink(buf))
	}
	return buf
}
