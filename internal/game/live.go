package game

import "time"

type Stage string

const (
	StageIdle    Stage = "idle"
	StageHandoff Stage = "handoff"
	StageInspect Stage = "inspect"
	StageRunning Stage = "running"
)

type Color string

const (
	ColorNone   Color = "none"
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
)

// Timings are the per-stage durations that follow arming. Boundaries are
// cumulative: handoff, then red, yellow and green inspection, then running.
type Timings struct {
	Handoff time.Duration
	Red     time.Duration
	Yellow  time.Duration
	Green   time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Handoff: 5 * time.Second,
		Red:     8 * time.Second,
		Yellow:  4 * time.Second,
		Green:   3 * time.Second,
	}
}

// Preroll is the elapsed time after arming at which running begins.
func (t Timings) Preroll() time.Duration {
	return t.Handoff + t.Red + t.Yellow + t.Green
}

// runningAnchor is the reference point of an active solve.
type runningAnchor struct {
	startedAt   time.Time
	accumulated time.Duration
}

// LiveView is the derived, read-only stage of one competitor at an instant.
type LiveView struct {
	Status      Stage  `json:"status"`
	Color       Color  `json:"color"`
	CountdownMs int64  `json:"countdownMs"`
	TimeMs      int64  `json:"timeMs"`
	TimeText    string `json:"timeText"`
}

func idleView() LiveView {
	return LiveView{Status: StageIdle, Color: ColorNone, TimeText: FormatMs(0)}
}

// Derive computes the live stage of c at now. It never mutates c: anchor
// materialization happens in Competition.Advance before views are built.
func Derive(c *Competitor, t Timings, now time.Time) LiveView {
	if c.armedAt.IsZero() {
		return idleView()
	}

	elapsed := now.Sub(c.armedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	handoffEnd := t.Handoff
	redEnd := handoffEnd + t.Red
	yellowEnd := redEnd + t.Yellow
	greenEnd := yellowEnd + t.Green

	switch {
	case elapsed < handoffEnd:
		return countdownView(StageHandoff, ColorNone, handoffEnd-elapsed)
	case elapsed < redEnd:
		return countdownView(StageInspect, ColorRed, redEnd-elapsed)
	case elapsed < yellowEnd:
		return countdownView(StageInspect, ColorYellow, yellowEnd-elapsed)
	case elapsed < greenEnd:
		return countdownView(StageInspect, ColorGreen, greenEnd-elapsed)
	}

	var running time.Duration
	if c.anchor != nil {
		running = c.anchor.accumulated + now.Sub(c.anchor.startedAt)
		if running < 0 {
			running = 0
		}
	}
	ms := running.Milliseconds()
	return LiveView{
		Status:   StageRunning,
		Color:    ColorNone,
		TimeMs:   ms,
		TimeText: FormatMs(ms),
	}
}

func countdownView(s Stage, col Color, left time.Duration) LiveView {
	return LiveView{
		Status:      s,
		Color:       col,
		CountdownMs: left.Milliseconds(),
		TimeText:    FormatMs(0),
	}
}

// prerollCrossed reports whether c is armed, past the pre-roll boundary and
// still lacks a running anchor.
func prerollCrossed(c *Competitor, t Timings, now time.Time) bool {
	if c.armedAt.IsZero() || c.anchor != nil {
		return false
	}
	return now.Sub(c.armedAt) >= t.Preroll()
}
