package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tickerwatch/internal/application/port"
)

type mockUpstream struct {
	mu   sync.Mutex
	sent []SubRequest
	err  error
}

func (m *mockUpstream) Send(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, v.(SubRequest))
	return nil
}

func (m *mockUpstream) Sent() []SubRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SubRequest, len(m.sent))
	copy(out, m.sent)
	return out
}

func startRelay(t *testing.T, up port.Upstream) *Relay {
	t.Helper()
	r := New(up, 16)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-r.Done()
	})
	return r
}

func connect(t *testing.T, r *Relay, id string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := r.Connect(ctx, id)
	if err != nil {
		t.Fatalf("connect %s failed: %v", id, err)
	}
	return c
}

func nextEvent(t *testing.T, c *Client) port.StreamEvent {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatalf("events channel of %s closed", c.ID())
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for event on %s", c.ID())
	}
	return port.StreamEvent{}
}

func expectNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event on %s: %+v", c.ID(), ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// openRelay 连接一个端口并驱动上游进入 Open
func openRelay(t *testing.T, r *Relay, c *Client) {
	t.Helper()
	r.OnUpstreamOpen()
	ev := nextEvent(t, c)
	if ev.Kind != port.EventState || ev.State != port.ConnOpen {
		t.Fatalf("expected open state event, got %+v", ev)
	}
}

func TestConnectSendsStateSnapshot(t *testing.T) {
	r := startRelay(t, &mockUpstream{})
	a := connect(t, r, "tab-a")

	ev := nextEvent(t, a)
	if ev.Kind != port.EventState || ev.State != port.ConnConnecting {
		t.Fatalf("expected connecting snapshot, got %+v", ev)
	}

	openRelay(t, r, a)

	// 迟到的端口看到 Open
	b := connect(t, r, "tab-b")
	ev = nextEvent(t, b)
	if ev.State != port.ConnOpen {
		t.Errorf("late joiner expected open state, got %v", ev.State)
	}
}

func TestSubscribeForwardsUpstream(t *testing.T) {
	up := &mockUpstream{}
	r := startRelay(t, up)
	c := connect(t, r, "tab-a")
	nextEvent(t, c)
	openRelay(t, r, c)

	if err := c.Subscribe("btc"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := c.Unsubscribe("BTC"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	sent := up.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 upstream frames, got %d", len(sent))
	}
	if sent[0].Action != ActionSubAdd || sent[0].Subs[0] != "5~CCCAGG~BTC~USD" {
		t.Errorf("unexpected subscribe frame %+v", sent[0])
	}
	if sent[1].Action != ActionSubRemove || sent[1].Subs[0] != "5~CCCAGG~BTC~USD" {
		t.Errorf("unexpected unsubscribe frame %+v", sent[1])
	}
}

func TestSubscribeBeforeOpenIsSentOnOpen(t *testing.T) {
	up := &mockUpstream{}
	r := startRelay(t, up)
	c := connect(t, r, "tab-a")
	nextEvent(t, c)

	if err := c.Subscribe("ETH"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if len(up.Sent()) != 0 {
		t.Fatal("nothing should be sent before the upstream is open")
	}

	openRelay(t, r, c)
	sent := up.Sent()
	if len(sent) != 1 || sent[0].Subs[0] != "5~CCCAGG~ETH~USD" {
		t.Errorf("expected ETH subscription on open, got %+v", sent)
	}
}

func TestUpstreamSendErrorSurfaces(t *testing.T) {
	up := &mockUpstream{err: errors.New("broken pipe")}
	r := startRelay(t, up)
	c := connect(t, r, "tab-a")
	nextEvent(t, c)
	openRelay(t, r, c)

	if err := c.Subscribe("BTC"); err == nil {
		t.Fatal("expected send error")
	}
}

func TestTicksBroadcastToAllPorts(t *testing.T) {
	r := startRelay(t, &mockUpstream{})
	a := connect(t, r, "tab-a")
	b := connect(t, r, "tab-b")
	nextEvent(t, a)
	nextEvent(t, b)

	r.OnUpstreamMessage([]byte(`{"TYPE":"5","FROMSYMBOL":"BTC","FLAGS":1,"PRICE":200}`))
	r.OnUpstreamMessage([]byte(`{"TYPE":"5","FROMSYMBOL":"BTC","FLAGS":2,"PRICE":150}`))

	for _, c := range []*Client{a, b} {
		first := nextEvent(t, c)
		second := nextEvent(t, c)
		if first.Kind != port.EventTick || first.Tick != (port.Tick{Symbol: "BTC", Flags: 1, Price: 200}) {
			t.Errorf("%s: unexpected first tick %+v", c.ID(), first)
		}
		if second.Tick.Price != 150 {
			t.Errorf("%s: per-symbol order not preserved, got %+v", c.ID(), second)
		}
	}
}

func TestWelcomeMessageBroadcast(t *testing.T) {
	r := startRelay(t, &mockUpstream{})
	a := connect(t, r, "tab-a")
	nextEvent(t, a)

	r.OnUpstreamMessage([]byte(`{"TYPE":"20","MESSAGE":"STREAMERWELCOME"}`))
	ev := nextEvent(t, a)
	if ev.Kind != port.EventWelcome {
		t.Errorf("expected welcome event, got %+v", ev)
	}
}

func TestMalformedAndUnknownMessagesDropped(t *testing.T) {
	r := startRelay(t, &mockUpstream{})
	a := connect(t, r, "tab-a")
	nextEvent(t, a)

	r.OnUpstreamMessage([]byte(`not json`))
	r.OnUpstreamMessage([]byte(`{"TYPE":"999"}`))
	r.OnUpstreamMessage([]byte(`{"TYPE":"5"}`))
	r.OnUpstreamMessage([]byte(`{"TYPE":"500","MESSAGE":"INVALID_SUB"}`))
	expectNoEvent(t, a)

	// relay 仍然可用
	r.OnUpstreamMessage([]byte(`{"TYPE":"5","FROMSYMBOL":"eth","FLAGS":1,"PRICE":10}`))
	ev := nextEvent(t, a)
	if ev.Tick.Symbol != "ETH" {
		t.Errorf("expected ETH tick after malformed input, got %+v", ev)
	}
	if got := r.Stats().Malformed; got != 3 {
		t.Errorf("expected 3 malformed messages, got %d", got)
	}
}

func TestCloseBroadcastsClosedState(t *testing.T) {
	r := startRelay(t, &mockUpstream{})
	a := connect(t, r, "tab-a")
	nextEvent(t, a)
	openRelay(t, r, a)

	r.OnUpstreamClose(errors.New("network drop"))
	ev := nextEvent(t, a)
	if ev.Kind != port.EventState || ev.State != port.ConnClosed {
		t.Fatalf("expected closed event, got %+v", ev)
	}
	if r.State() != port.ConnClosed {
		t.Errorf("expected relay state closed, got %v", r.State())
	}
}

func TestResubscribeAfterReopen(t *testing.T) {
	up := &mockUpstream{}
	r := startRelay(t, up)
	c := connect(t, r, "tab-a")
	nextEvent(t, c)
	openRelay(t, r, c)

	_ = c.Subscribe("BTC")
	_ = c.Subscribe("ETH")
	_ = c.Unsubscribe("ETH")

	r.OnUpstreamClose(nil)
	nextEvent(t, c)
	openRelay(t, r, c)

	sent := up.Sent()
	last := sent[len(sent)-1]
	if last.Action != ActionSubAdd || last.Subs[0] != "5~CCCAGG~BTC~USD" {
		t.Errorf("expected BTC resubscribe after reopen, got %+v", last)
	}
	if len(sent) != 4 {
		t.Errorf("expected only BTC to be resubscribed, frames: %+v", sent)
	}
}

func TestClientCloseUnregisters(t *testing.T) {
	r := startRelay(t, &mockUpstream{})
	a := connect(t, r, "tab-a")
	nextEvent(t, a)

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case _, ok := <-a.Events():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}

	if err := a.Subscribe("BTC"); !errors.Is(err, ErrClientClosed) {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if n := r.Stats().Ports; n != 0 {
		t.Errorf("expected 0 ports, got %d", n)
	}
}

func TestFullPortDropsWithoutBlocking(t *testing.T) {
	r := New(&mockUpstream{}, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-r.Done()
	}()
	go r.Run(ctx)

	slow := connect(t, r, "slow")
	fast := connect(t, r, "fast")
	nextEvent(t, fast) // state snapshot

	for i := 0; i < 5; i++ {
		r.OnUpstreamMessage([]byte(`{"TYPE":"5","FROMSYMBOL":"BTC","FLAGS":1,"PRICE":1}`))
		nextEvent(t, fast)
	}

	if r.Stats().Dropped == 0 {
		t.Error("expected drops on the slow port")
	}
	_ = slow
}

func TestConnectAfterStop(t *testing.T) {
	r := New(&mockUpstream{}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	cancel()
	<-r.Done()

	if _, err := r.Connect(context.Background(), ""); !errors.Is(err, ErrRelayClosed) {
		t.Errorf("expected ErrRelayClosed, got %v", err)
	}
}
