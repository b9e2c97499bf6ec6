package sim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_AfterInit_LatePortConnection(t *testing.T) {
	si := NewSimInit()
	a, b := newNode("A"), newNode("B")
	mbB := NewMailbox[*node]()
	register(t, si, a, NewMailbox[*node]())
	register(t, si, b, mbB)
	_, err := si.Init(Epoch)
	require.NoError(t, err)

	assert.ErrorIs(t, Connect(a.Fwd, (*node).Note, mbB.Address()), ErrLatePortConnection)
	assert.ErrorIs(t, ConnectRequestor(a.Req, (*node).Echo, mbB.Address()), ErrLatePortConnection)
}

func TestConnectSink_AfterInit_LatePortConnection(t *testing.T) {
	// GIVEN a registered model whose output has never broadcast
	si := NewSimInit()
	a := newNode("A")
	addr := register(t, si, a, NewMailbox[*node]())
	s, err := si.Init(Epoch)
	require.NoError(t, err)

	// WHEN a sink or a fresh destination is wired to it after Init
	// THEN both are rejected
	assert.ErrorIs(t, a.Out.ConnectSink(NewEventSlot[string]()), ErrLatePortConnection)
	assert.ErrorIs(t, a.Out.ConnectTimedSink(NewEventBuffer[Timed[string]]()), ErrLatePortConnection)
	assert.ErrorIs(t, Connect(a.Fwd, (*node).Note, NewMailbox[*node]().Address()), ErrLatePortConnection)
	assert.Equal(t, 0, a.Out.Len())

	// AND the output still broadcasts to nobody without error
	require.NoError(t, ProcessEvent(s, (*node).Note, "x", addr))
}

// hidden keeps its ports out of reach of other packages.
type hidden struct {
	out    *Output[string]
	group  struct{ req *Requestor[string, string] }
	byName map[string]*Output[int]
	multi  []*MultiRequestor[string, string]
}

func TestInit_SealsUnexportedPorts(t *testing.T) {
	si := NewSimInit()
	h := &hidden{
		out:    NewOutput[string](),
		byName: map[string]*Output[int]{"x": NewOutput[int]()},
		multi:  []*MultiRequestor[string, string]{NewMultiRequestor[string, string]()},
	}
	h.group.req = &Requestor[string, string]{}
	_, err := Register(si, h, NewMailbox[*hidden](), "H")
	require.NoError(t, err)
	_, err = si.Init(Epoch)
	require.NoError(t, err)

	fresh := NewMailbox[*node]().Address()
	assert.ErrorIs(t, h.out.ConnectSink(NewEventSlot[string]()), ErrLatePortConnection)
	assert.ErrorIs(t, ConnectRequestor(h.group.req, (*node).Echo, fresh), ErrLatePortConnection)
	assert.ErrorIs(t, h.byName["x"].ConnectSink(NewEventSlot[int]()), ErrLatePortConnection)
	assert.ErrorIs(t, ConnectMulti(h.multi[0], (*node).Echo, fresh), ErrLatePortConnection)
}

func TestInit_SealsPortsHeldByEnvironment(t *testing.T) {
	type env struct{ alarm *Output[string] }
	si := NewSimInit()
	e := env{alarm: NewOutput[string]()}
	build := func(_ *BuildContext) (*node, env, error) { return newNode("P"), e, nil }
	_, err := RegisterProto(si, build, NewMailbox[*node](), "P")
	require.NoError(t, err)
	_, err = si.Init(Epoch)
	require.NoError(t, err)

	assert.ErrorIs(t, e.alarm.ConnectSink(NewEventSlot[string]()), ErrLatePortConnection)
}

func TestConnect_DuringBroadcast_Rejected(t *testing.T) {
	// GIVEN a handler reached through A.Fwd that tries to extend A.Fwd
	si := NewSimInit()
	a := newNode("A")
	buf := NewEventBuffer[string]()
	require.NoError(t, a.Fwd.ConnectSink(buf))
	addr := register(t, si, a, NewMailbox[*node]())
	s, err := si.Init(Epoch)
	require.NoError(t, err)

	var late error
	rewire := func(p *node, v string, cx *Context) error {
		if err := p.Fwd.Send(cx, v); err != nil {
			return err
		}
		late = p.Fwd.ConnectSink(buf)
		return nil
	}

	require.NoError(t, ProcessEvent(s, rewire, "v", addr))
	assert.ErrorIs(t, late, ErrLatePortConnection)
	assert.Equal(t, []string{"v"}, buf.Drain())
}

func TestConnect_ZeroAddressAndNilSink(t *testing.T) {
	out := NewOutput[string]()
	assert.Error(t, Connect(out, (*node).Note, Address[*node]{}))
	assert.Error(t, out.ConnectSink(nil))
	assert.Equal(t, 0, out.Len())

	rq := &Requestor[string, string]{}
	assert.Error(t, ConnectRequestor(rq, (*node).Echo, Address[*node]{}))
	assert.False(t, rq.IsConnected())
}

func TestConnectRequestor_OnlyOnce(t *testing.T) {
	mbB, mbC := NewMailbox[*node](), NewMailbox[*node]()
	rq := &Requestor[string, string]{}
	require.NoError(t, ConnectRequestor(rq, (*node).Echo, mbB.Address()))
	assert.True(t, rq.IsConnected())

	assert.ErrorIs(t, ConnectRequestor(rq, (*node).Echo, mbC.Address()), ErrPortAlreadyConnected)
}

func TestNewRequestor_BoundAtConstruction(t *testing.T) {
	si := NewSimInit()
	mbB := NewMailbox[*node]()
	a, b := newNode("A"), newNode("B")
	a.Req = NewRequestor((*node).Echo, mbB.Address())
	require.True(t, a.Req.IsConnected())
	slot := NewEventSlot[string]()
	require.NoError(t, a.Out.ConnectSink(slot))
	addr := register(t, si, a, NewMailbox[*node]())
	register(t, si, b, mbB)
	s, err := si.Init(at(2))
	require.NoError(t, err)

	require.NoError(t, ProcessEvent(s, (*node).Ask, "q", addr))
	v, ok := slot.Next()
	require.True(t, ok)
	assert.Equal(t, "A:q@2.000000000s", v)

	assert.False(t, NewRequestor((*node).Echo, Address[*node]{}).IsConnected())
}

func TestSend_OutsideHandler(t *testing.T) {
	out := NewOutput[int]()
	assert.ErrorIs(t, out.Send(nil, 1), ErrNotInitialized)

	_, err := (&Requestor[int, int]{}).Send(nil, 1)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestMultiRequestor_RepliesInConnectionOrder(t *testing.T) {
	// GIVEN A polling C then B through one multi-destination requestor
	si := NewSimInit()
	a, b, c := newNode("A"), newNode("B"), newNode("C")
	mbB, mbC := NewMailbox[*node](), NewMailbox[*node]()
	poll := NewMultiRequestor[string, string]()
	label := func(p *node, v string, _ *Context) (string, error) { return p.name + "=" + v, nil }
	require.NoError(t, ConnectMulti(poll, label, mbC.Address()))
	require.NoError(t, ConnectMulti(poll, label, mbB.Address()))
	assert.Equal(t, 2, poll.Len())
	addrA := register(t, si, a, NewMailbox[*node]())
	register(t, si, b, mbB)
	register(t, si, c, mbC)
	s, err := si.Init(Epoch)
	require.NoError(t, err)

	// WHEN A asks
	var replies []string
	ask := func(_ *node, v string, cx *Context) error {
		var err error
		replies, err = poll.Send(cx, v)
		return err
	}
	require.NoError(t, ProcessEvent(s, ask, "ping", addrA))

	// THEN there is one reply per destination, in connection order
	assert.Equal(t, []string{"C=ping", "B=ping"}, replies)

	// AND wiring more destinations is now rejected
	assert.ErrorIs(t, ConnectMulti(poll, label, mbB.Address()), ErrLatePortConnection)
}

func TestMultiRequestor_NoDestinations(t *testing.T) {
	si := NewSimInit()
	addrA := register(t, si, newNode("A"), NewMailbox[*node]())
	s, err := si.Init(Epoch)
	require.NoError(t, err)

	poll := NewMultiRequestor[int, int]()
	var replies []int
	ask := func(_ *node, _ string, cx *Context) error {
		var err error
		replies, err = poll.Send(cx, 1)
		return err
	}
	require.NoError(t, ProcessEvent(s, ask, "", addrA))
	assert.Empty(t, replies)

	_, err = poll.Send(nil, 1)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestConnectTimedSink_StampsBroadcastTime(t *testing.T) {
	si := NewSimInit()
	k := &ticker{node: newNode("T")}
	stamped := NewEventBuffer[Timed[string]]()
	require.NoError(t, k.Out.ConnectTimedSink(stamped))
	assert.Error(t, k.Out.ConnectTimedSink(nil))
	_, err := Register(si, k, NewMailbox[*ticker](), "T")
	require.NoError(t, err)
	s, err := si.Init(Epoch)
	require.NoError(t, err)

	require.NoError(t, s.StepUntil(at(3)))

	got := stamped.Drain()
	require.Len(t, got, 3)
	for i, v := range got {
		assert.Equal(t, at(int64(i+1)), v.At)
		assert.Equal(t, fmt.Sprintf("T:tick@%s", at(int64(i+1))), v.Value)
	}
}
