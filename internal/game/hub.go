package game

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultTickInterval = 120 * time.Millisecond

var (
	ErrHubStopped  = errors.New("hub stopped")
	ErrStateEncode = errors.New("state could not be encoded")
)

// SnapshotSink receives every broadcast snapshot. Publish must not block.
type SnapshotSink interface {
	Publish(payload []byte)
}

type Config struct {
	Rules          Rules
	ScrambleLength int
	TickInterval   time.Duration
}

// Hub is the single owner of the competition state and of the set of
// observer connections. Every read and write goes through its inbox and is
// applied in arrival order by Run.
type Hub struct {
	comp  *Competition
	clock clockwork.Clock
	log   *slog.Logger
	tick  time.Duration
	sink  SnapshotSink

	inbox chan hubEvent
	done  chan struct{}
	conns map[*ClientConn]struct{}
}

type hubEvent interface{ isHubEvent() }

type attachEvent struct{ cc *ClientConn }

type detachEvent struct{ cc *ClientConn }

type inboundEvent struct {
	cc  *ClientConn
	msg Message
}

type stateQuery struct{ reply chan []byte }

func (attachEvent) isHubEvent()  {}
func (detachEvent) isHubEvent()  {}
func (inboundEvent) isHubEvent() {}
func (stateQuery) isHubEvent()   {}

type HubOption func(*Hub)

func WithClock(c clockwork.Clock) HubOption { return func(h *Hub) { h.clock = c } }

func WithLogger(l *slog.Logger) HubOption { return func(h *Hub) { h.log = l } }

func WithSink(s SnapshotSink) HubOption { return func(h *Hub) { h.sink = s } }

func NewHub(cfg Config, opts ...HubOption) *Hub {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	h := &Hub{
		comp:  NewCompetition(cfg.Rules, NewScrambler(nil, cfg.ScrambleLength)),
		clock: clockwork.NewRealClock(),
		log:   slog.Default(),
		tick:  cfg.TickInterval,
		inbox: make(chan hubEvent, 256),
		done:  make(chan struct{}),
		conns: make(map[*ClientConn]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run processes events until ctx is cancelled. On exit every attached
// connection is closed.
func (h *Hub) Run(ctx context.Context) error {
	ticker := h.clock.NewTicker(h.tick)
	defer ticker.Stop()
	defer close(h.done)
	defer func() {
		for cc := range h.conns {
			cc.Close()
		}
		h.conns = map[*ClientConn]struct{}{}
	}()

	h.log.Info("hub started", "tick", h.tick)
	for {
		select {
		case <-ctx.Done():
			h.log.Info("hub stopping")
			return nil
		case ev := <-h.inbox:
			h.handle(ev)
		case <-ticker.Chan():
			h.onTick()
		}
	}
}

func (h *Hub) enqueue(ctx context.Context, ev hubEvent) error {
	select {
	case h.inbox <- ev:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Attach(ctx context.Context, cc *ClientConn) error {
	return h.enqueue(ctx, attachEvent{cc: cc})
}

func (h *Hub) Detach(cc *ClientConn) {
	_ = h.enqueue(context.Background(), detachEvent{cc: cc})
}

func (h *Hub) Dispatch(ctx context.Context, cc *ClientConn, msg Message) error {
	return h.enqueue(ctx, inboundEvent{cc: cc, msg: msg})
}

// Snapshot returns the serialized current state.
func (h *Hub) Snapshot(ctx context.Context) ([]byte, error) {
	q := stateQuery{reply: make(chan []byte, 1)}
	if err := h.enqueue(ctx, q); err != nil {
		return nil, err
	}
	select {
	case b := <-q.reply:
		if b == nil {
			return nil, ErrStateEncode
		}
		return b, nil
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) handle(ev hubEvent) {
	now := h.clock.Now()
	advanced := h.comp.Advance(now)

	switch e := ev.(type) {
	case attachEvent:
		h.conns[e.cc] = struct{}{}
		h.log.Info("observer attached", "conn", e.cc.id, "observers", len(h.conns))
		if advanced {
			h.broadcast(now)
			return
		}
		h.sendTo(e.cc, h.marshalState(now))

	case detachEvent:
		if _, ok := h.conns[e.cc]; ok {
			delete(h.conns, e.cc)
			e.cc.Close()
			h.log.Info("observer detached", "conn", e.cc.id, "observers", len(h.conns))
		}
		if advanced {
			h.broadcast(now)
		}

	case inboundEvent:
		if h.apply(e.cc, e.msg, now) || advanced {
			h.broadcast(now)
		}

	case stateQuery:
		e.reply <- h.marshalState(now)
		if advanced {
			h.broadcast(now)
		}
	}
}

// apply runs one command and reports whether the competition changed.
func (h *Hub) apply(cc *ClientConn, msg Message, now time.Time) bool {
	var err error
	switch m := msg.(type) {
	case IdentifyMessage:
		id, ok := h.comp.Identify(m.DeviceToken)
		h.replyMe(cc, id, ok)
		return false

	case RegisterMessage:
		var comp *Competitor
		comp, err = h.comp.Register(m.Name, m.DeviceToken)
		switch {
		case err == nil:
			h.log.Info("competitor registered", "id", comp.ID(), "name", comp.Name())
			h.replyMe(cc, comp.ID(), true)
			return true
		case errors.Is(err, ErrNameTaken):
			h.sendTo(cc, h.encode(ErrorPayload{Type: TypeError, Code: CodeNameTaken, Message: err.Error()}))
		case errors.Is(err, ErrTokenBound):
			h.replyMe(cc, comp.ID(), true)
		}

	case ApproveRosterMessage:
		if err = h.comp.ApproveRoster(now); err == nil {
			pairs := h.comp.Pairs()
			h.log.Info("roster approved", "pairs", len(pairs), "jobs", len(h.comp.Jobs()))
			return true
		}

	case StartRoundMessage:
		if err = h.comp.StartRound(); err == nil {
			h.log.Info("round started")
			return true
		}

	case ConfirmScrambleMessage:
		if err = h.comp.ConfirmJob(m.JobID, m.DeviceToken, now); err == nil {
			h.log.Debug("job confirmed", "job", m.JobID)
			return true
		}

	case PauseMessage:
		var ms int64
		if ms, err = h.comp.Pause(m.DeviceToken, now); err == nil {
			h.log.Info("attempt recorded", "ms", ms, "time", FormatMs(ms))
			return true
		}

	case ResetAllMessage:
		h.comp.ResetAll()
		h.log.Info("competition reset")
		return true

	case NextAttemptMessage:
		var n int
		if n, err = h.comp.NextAttempt(now); err == nil {
			h.log.Info("next attempt issued", "jobs", n)
			return true
		}
	}

	if err != nil {
		h.log.Debug("command rejected", "type", msg.Type(), "err", err)
	}
	return false
}

func (h *Hub) onTick() {
	if !h.comp.Active() {
		return
	}
	now := h.clock.Now()
	h.comp.Advance(now)
	h.broadcast(now)
}

func (h *Hub) replyMe(cc *ClientConn, id string, ok bool) {
	p := MePayload{Type: TypeMe}
	if ok {
		p.MyID = &id
	}
	h.sendTo(cc, h.encode(p))
}

func (h *Hub) marshalState(now time.Time) []byte {
	return h.encode(h.comp.State(now))
}

// broadcast pushes one full snapshot to every observer and the sink.
func (h *Hub) broadcast(now time.Time) {
	b := h.marshalState(now)
	if b == nil {
		return
	}
	for cc := range h.conns {
		h.sendTo(cc, b)
	}
	if h.sink != nil {
		h.sink.Publish(b)
	}
}

func (h *Hub) sendTo(cc *ClientConn, b []byte) {
	if cc == nil || b == nil {
		return
	}
	if !cc.trySend(b) {
		h.log.Debug("observer not writable, skipped", "conn", cc.id)
	}
}

// encode returns nil when v cannot be marshalled; nil frames are never sent.
func (h *Hub) encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error("encode outbound message", "err", err)
		return nil
	}
	return b
}
