package game

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn() *ClientConn {
	return &ClientConn{
		id:     "test",
		send:   make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

type recordingSink struct{ payloads [][]byte }

func (s *recordingSink) Publish(b []byte) { s.payloads = append(s.payloads, b) }

func newTestHub(t *testing.T, opts ...HubOption) (*Hub, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	base := []HubOption{
		WithClock(clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	h := NewHub(Config{Rules: DefaultRules(), TickInterval: 100 * time.Millisecond}, append(base, opts...)...)
	return h, clock
}

type envelope struct {
	Type string `json:"type"`
	raw  []byte
}

func readNonBlocking(c *ClientConn) []envelope {
	var out []envelope
	for {
		select {
		case msg := <-c.send:
			var env envelope
			if json.Unmarshal(msg, &env) == nil {
				env.raw = msg
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func lastOf(t *testing.T, envs []envelope, typ string, v any) bool {
	t.Helper()
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type == typ {
			require.NoError(t, json.Unmarshal(envs[i].raw, v))
			return true
		}
	}
	return false
}

func countOf(envs []envelope, typ string) int {
	n := 0
	for _, e := range envs {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func send(h *Hub, cc *ClientConn, msg Message) {
	h.handle(inboundEvent{cc: cc, msg: msg})
}

func attach(h *Hub) *ClientConn {
	cc := newTestConn()
	h.handle(attachEvent{cc: cc})
	return cc
}

func TestHub_Scenarios(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "attach sends initial state to the new observer only",
			run: func(t *testing.T) {
				h, _ := newTestHub(t)
				c1 := attach(h)
				readNonBlocking(c1)
				c2 := attach(h)

				assert.Empty(t, readNonBlocking(c1))
				var st StatePayload
				require.True(t, lastOf(t, readNonBlocking(c2), TypeState, &st))
				assert.Equal(t, PhaseRegistration, st.Phase)
				assert.Empty(t, st.Competitors)
			},
		},
		{
			name: "register replies ME and broadcasts without tokens",
			run: func(t *testing.T) {
				sink := &recordingSink{}
				h, _ := newTestHub(t, WithSink(sink))
				c1, c2 := attach(h), attach(h)
				readNonBlocking(c1)
				readNonBlocking(c2)

				send(h, c1, RegisterMessage{Name: "Ana", DeviceToken: "secret-ana"})

				envs1 := readNonBlocking(c1)
				var me MePayload
				require.True(t, lastOf(t, envs1, TypeMe, &me))
				require.NotNil(t, me.MyID)

				envs2 := readNonBlocking(c2)
				assert.Zero(t, countOf(envs2, TypeMe))
				var st StatePayload
				require.True(t, lastOf(t, envs2, TypeState, &st))
				require.Len(t, st.Competitors, 1)
				assert.Equal(t, *me.MyID, st.Competitors[0].ID)

				for _, e := range append(envs1, envs2...) {
					assert.NotContains(t, string(e.raw), "secret-ana")
				}
				require.Len(t, sink.payloads, 1)
				assert.NotContains(t, string(sink.payloads[0]), "secret-ana")
			},
		},
		{
			name: "name taken errors to the caller only",
			run: func(t *testing.T) {
				h, _ := newTestHub(t)
				c1, c2 := attach(h), attach(h)
				send(h, c1, RegisterMessage{Name: "Ana", DeviceToken: "device-ana"})
				readNonBlocking(c1)
				readNonBlocking(c2)

				send(h, c2, RegisterMessage{Name: "ANA", DeviceToken: "device-other"})

				var perr ErrorPayload
				envs2 := readNonBlocking(c2)
				require.True(t, lastOf(t, envs2, TypeError, &perr))
				assert.Equal(t, CodeNameTaken, perr.Code)
				assert.Zero(t, countOf(envs2, TypeState))
				assert.Empty(t, readNonBlocking(c1))
			},
		},
		{
			name: "identify resolves bound and unbound tokens",
			run: func(t *testing.T) {
				h, _ := newTestHub(t)
				cc := attach(h)
				send(h, cc, RegisterMessage{Name: "Ana", DeviceToken: "device-ana"})
				readNonBlocking(cc)

				var me MePayload
				send(h, cc, IdentifyMessage{DeviceToken: "device-ana"})
				envs := readNonBlocking(cc)
				require.True(t, lastOf(t, envs, TypeMe, &me))
				require.NotNil(t, me.MyID)
				assert.Zero(t, countOf(envs, TypeState), "identify must not broadcast")

				send(h, cc, IdentifyMessage{DeviceToken: "device-nobody"})
				require.True(t, lastOf(t, readNonBlocking(cc), TypeMe, &me))
				assert.Nil(t, me.MyID)
			},
		},
		{
			name: "rejected commands are silent",
			run: func(t *testing.T) {
				h, _ := newTestHub(t)
				cc := attach(h)
				readNonBlocking(cc)

				send(h, cc, StartRoundMessage{})
				send(h, cc, ApproveRosterMessage{})
				send(h, cc, PauseMessage{DeviceToken: "device-ghost"})
				send(h, cc, ConfirmScrambleMessage{JobID: "x", DeviceToken: "device-ghost"})
				send(h, cc, RegisterMessage{Name: "A", DeviceToken: "device-a"})

				assert.Empty(t, readNonBlocking(cc))
				assert.Equal(t, PhaseRegistration, h.comp.Phase())
			},
		},
		{
			name: "full attempt through the hub",
			run: func(t *testing.T) {
				h, clock := newTestHub(t)
				obs := attach(h)
				c1, c2 := attach(h), attach(h)

				send(h, c1, RegisterMessage{Name: "Ana", DeviceToken: "device-ana"})
				send(h, c2, RegisterMessage{Name: "Bruno", DeviceToken: "device-bruno"})
				send(h, obs, ApproveRosterMessage{})
				send(h, obs, StartRoundMessage{})

				var st StatePayload
				require.True(t, lastOf(t, readNonBlocking(obs), TypeState, &st))
				require.Equal(t, PhaseRunning, st.Phase)
				require.Len(t, st.Jobs, 2)
				ana := st.Competitors[0].ID

				var job Job
				for _, j := range st.Jobs {
					if j.RecipientID == ana {
						job = j
					}
				}
				require.NotEmpty(t, job.ID)

				send(h, c2, ConfirmScrambleMessage{JobID: job.ID, DeviceToken: "device-bruno"})
				require.True(t, lastOf(t, readNonBlocking(obs), TypeState, &st))
				assert.Equal(t, StageHandoff, st.Competitors[0].Live.Status)

				clock.Advance(6 * time.Second)
				h.onTick()
				require.True(t, lastOf(t, readNonBlocking(obs), TypeState, &st))
				assert.Equal(t, StageInspect, st.Competitors[0].Live.Status)
				assert.Equal(t, ColorRed, st.Competitors[0].Live.Color)

				clock.Advance(14 * time.Second)
				h.onTick()
				started := h.comp.byID[ana].anchor.startedAt
				clock.Advance(50 * time.Millisecond)
				h.onTick()
				assert.Equal(t, started, h.comp.byID[ana].anchor.startedAt)

				clock.Advance(73 * time.Millisecond)
				send(h, c1, PauseMessage{DeviceToken: "device-ana"})
				require.True(t, lastOf(t, readNonBlocking(obs), TypeState, &st))
				require.NotNil(t, st.Competitors[0].Attempts[0])
				assert.Equal(t, int64(123), *st.Competitors[0].Attempts[0])
				assert.Equal(t, "0.12", st.Competitors[0].AttemptsText[0])
				assert.Equal(t, StageIdle, st.Competitors[0].Live.Status)
			},
		},
		{
			name: "another connection cannot pause a solve by competitor id",
			run: func(t *testing.T) {
				h, clock := newTestHub(t)
				c1, c2, stranger := attach(h), attach(h), attach(h)
				send(h, c1, RegisterMessage{Name: "Ana", DeviceToken: "device-ana"})
				send(h, c2, RegisterMessage{Name: "Bruno", DeviceToken: "device-bruno"})
				send(h, c1, ApproveRosterMessage{})
				send(h, c1, StartRoundMessage{})

				anaID, _ := h.comp.Identify("device-ana")
				for _, j := range h.comp.Jobs() {
					if j.RecipientID == anaID {
						send(h, c2, ConfirmScrambleMessage{JobID: j.ID, DeviceToken: "device-bruno"})
					}
				}
				clock.Advance(20500 * time.Millisecond)
				h.onTick()
				ana := h.comp.byID[anaID]
				require.NotNil(t, ana.anchor)
				readNonBlocking(stranger)

				_, err := ParseMessage([]byte(`{"type":"PAUSE","id":"` + anaID + `"}`))
				require.ErrorIs(t, err, ErrMissingData)

				send(h, stranger, PauseMessage{DeviceToken: anaID})
				_, set := ana.Attempt(0)
				assert.False(t, set)
				assert.NotNil(t, ana.anchor)
				assert.Zero(t, countOf(readNonBlocking(stranger), TypeState))
			},
		},
		{
			name: "tick broadcasts only while someone is active",
			run: func(t *testing.T) {
				h, _ := newTestHub(t)
				cc := attach(h)
				send(h, cc, RegisterMessage{Name: "Ana", DeviceToken: "device-ana"})
				readNonBlocking(cc)

				h.onTick()
				assert.Empty(t, readNonBlocking(cc))
			},
		},
		{
			name: "reset mid-run drops the running time",
			run: func(t *testing.T) {
				h, clock := newTestHub(t)
				cc := attach(h)
				send(h, cc, RegisterMessage{Name: "Ana", DeviceToken: "device-ana"})
				send(h, cc, RegisterMessage{Name: "Bruno", DeviceToken: "device-bruno"})
				send(h, cc, ApproveRosterMessage{})
				send(h, cc, StartRoundMessage{})

				anaID, _ := h.comp.Identify("device-ana")
				ana := h.comp.byID[anaID]
				for _, j := range h.comp.Jobs() {
					if j.RecipientID == anaID {
						send(h, cc, ConfirmScrambleMessage{JobID: j.ID, DeviceToken: "device-bruno"})
					}
				}
				clock.Advance(21 * time.Second)
				h.onTick()
				require.NotNil(t, ana.anchor)

				send(h, cc, ResetAllMessage{})
				send(h, cc, PauseMessage{DeviceToken: "device-ana"})

				_, set := ana.Attempt(0)
				assert.False(t, set)
				var st StatePayload
				require.True(t, lastOf(t, readNonBlocking(cc), TypeState, &st))
				assert.Equal(t, PhaseRegistration, st.Phase)
				assert.Empty(t, st.Competitors)
				assert.Empty(t, st.Jobs)
			},
		},
		{
			name: "detached observers receive nothing",
			run: func(t *testing.T) {
				h, _ := newTestHub(t)
				c1, c2 := attach(h), attach(h)
				h.handle(detachEvent{cc: c2})
				readNonBlocking(c1)
				readNonBlocking(c2)

				send(h, c1, RegisterMessage{Name: "Ana", DeviceToken: "device-ana"})
				assert.NotEmpty(t, readNonBlocking(c1))
				assert.Empty(t, readNonBlocking(c2))
				assert.False(t, c2.trySend([]byte("x")))
			},
		},
		{
			name: "full send buffer is skipped",
			run: func(t *testing.T) {
				h, _ := newTestHub(t)
				slow := &ClientConn{id: "slow", send: make(chan []byte, 1), closed: make(chan struct{})}
				h.handle(attachEvent{cc: slow})
				fast := attach(h)
				readNonBlocking(fast)

				send(h, fast, RegisterMessage{Name: "Ana", DeviceToken: "device-ana"})
				assert.Len(t, slow.send, 1)
				assert.NotEmpty(t, readNonBlocking(fast))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

func TestHub_RunServesSnapshot(t *testing.T) {
	h, _ := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	cc := newTestConn()
	require.NoError(t, h.Attach(ctx, cc))
	require.NoError(t, h.Dispatch(ctx, cc, RegisterMessage{Name: "Ana", DeviceToken: "device-ana"}))

	b, err := h.Snapshot(ctx)
	require.NoError(t, err)
	var st StatePayload
	require.NoError(t, json.Unmarshal(b, &st))
	require.Len(t, st.Competitors, 1)
	assert.Equal(t, "Ana", st.Competitors[0].Name)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	_, err = h.Snapshot(context.Background())
	require.ErrorIs(t, err, ErrHubStopped)
	select {
	case <-cc.closed:
	default:
		t.Fatal("connection not closed on hub stop")
	}
}

func TestHub_UnencodableFrameIsNotSent(t *testing.T) {
	h, _ := newTestHub(t)
	cc := newTestConn()

	b := h.encode(map[string]float64{"x": math.NaN()})
	assert.Nil(t, b)

	h.sendTo(cc, b)
	assert.Empty(t, cc.send)
}
