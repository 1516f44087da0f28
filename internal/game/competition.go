package game

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Phase string

const (
	PhaseRegistration Phase = "registration"
	PhaseApproved     Phase = "approved"
	PhaseRunning      Phase = "running"
)

const (
	minNameLen  = 2
	maxNameLen  = 40
	minTokenLen = 6
)

var (
	ErrWrongPhase           = errors.New("command not allowed in current phase")
	ErrNameTaken            = errors.New("name already taken")
	ErrTokenBound           = errors.New("device token already registered")
	ErrInvalidName          = errors.New("name must be 2-40 characters")
	ErrInvalidToken         = errors.New("device token too short")
	ErrUnknownDevice        = errors.New("device token not registered")
	ErrNotEnoughCompetitors = errors.New("at least two competitors required")
	ErrJobNotFound          = errors.New("job not found")
	ErrJobNotPending        = errors.New("job already confirmed")
	ErrNotIssuer            = errors.New("device is not the job issuer")
	ErrAlreadyArmed         = errors.New("competitor already armed")
	ErrAttemptsExhausted    = errors.New("all attempt slots are filled")
	ErrNotRunning           = errors.New("competitor is not running")
	ErrNothingToIssue       = errors.New("no competitor needs a new job")
)

// Rules are the fixed parameters of a competition run.
type Rules struct {
	Timings  Timings
	Attempts int
}

func DefaultRules() Rules {
	return Rules{Timings: DefaultTimings(), Attempts: 5}
}

// Competition is the whole mutable state of one run: roster, round phase,
// pairs and jobs. It is not safe for concurrent use; Hub owns it.
type Competition struct {
	rules     Rules
	scrambler *Scrambler
	newID     func() string

	phase       Phase
	competitors []*Competitor
	byToken     map[string]*Competitor
	byID        map[string]*Competitor

	pairs    []Pair
	unpaired string
	jobs     []*Job
}

func NewCompetition(rules Rules, scrambler *Scrambler) *Competition {
	if rules.Attempts <= 0 {
		rules.Attempts = DefaultRules().Attempts
	}
	if scrambler == nil {
		scrambler = NewScrambler(nil, DefaultScrambleLength)
	}
	return &Competition{
		rules:     rules,
		scrambler: scrambler,
		newID:     uuid.NewString,
		phase:     PhaseRegistration,
		byToken:   make(map[string]*Competitor),
		byID:      make(map[string]*Competitor),
	}
}

func (c *Competition) Phase() Phase { return c.phase }
func (c *Competition) Rules() Rules { return c.rules }

func (c *Competition) Competitors() []*Competitor {
	return append([]*Competitor(nil), c.competitors...)
}

func (c *Competition) Competitor(id string) (*Competitor, bool) {
	comp, ok := c.byID[id]
	return comp, ok
}

// Register adds a competitor to the roster. On ErrTokenBound the already
// bound competitor is returned alongside the error.
func (c *Competition) Register(name, deviceToken string) (*Competitor, error) {
	if c.phase != PhaseRegistration {
		return nil, ErrWrongPhase
	}
	if existing, ok := c.byToken[deviceToken]; ok {
		return existing, ErrTokenBound
	}

	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return nil, ErrInvalidName
	}
	if len(deviceToken) < minTokenLen {
		return nil, ErrInvalidToken
	}
	for _, other := range c.competitors {
		if strings.EqualFold(other.name, name) {
			return nil, ErrNameTaken
		}
	}

	comp := newCompetitor(c.newID(), name, deviceToken, c.rules.Attempts)
	c.competitors = append(c.competitors, comp)
	c.byToken[deviceToken] = comp
	c.byID[comp.id] = comp
	return comp, nil
}

// Identify resolves a device token to its competitor id.
func (c *Competition) Identify(deviceToken string) (string, bool) {
	comp, ok := c.byToken[deviceToken]
	if !ok {
		return "", false
	}
	return comp.id, true
}

// ApproveRoster closes registration, pairs the roster and issues the first
// job for every paired competitor.
func (c *Competition) ApproveRoster(now time.Time) error {
	if c.phase != PhaseRegistration {
		return ErrWrongPhase
	}
	if len(c.competitors) < 2 {
		return ErrNotEnoughCompetitors
	}

	c.phase = PhaseApproved
	c.pairs, c.unpaired = buildPairs(c.competitors)
	for _, p := range c.pairs {
		c.issueForPair(p, now)
	}
	return nil
}

func (c *Competition) StartRound() error {
	if c.phase != PhaseApproved {
		return ErrWrongPhase
	}
	c.phase = PhaseRunning
	return nil
}

// ConfirmJob marks a pending job as confirmed by its issuer and arms the
// recipient. Nothing changes unless every precondition holds.
func (c *Competition) ConfirmJob(jobID, deviceToken string, now time.Time) error {
	if c.phase != PhaseRunning {
		return ErrWrongPhase
	}
	job := c.job(jobID)
	if job == nil {
		return ErrJobNotFound
	}
	if job.Status != JobPending {
		return ErrJobNotPending
	}
	issuer, ok := c.byToken[deviceToken]
	if !ok {
		return ErrUnknownDevice
	}
	if issuer.id != job.IssuerID {
		return ErrNotIssuer
	}
	recipient, ok := c.byID[job.RecipientID]
	if !ok {
		return ErrJobNotFound
	}
	if err := recipient.arm(now); err != nil {
		return err
	}
	job.Status = JobConfirmed
	return nil
}

// Pause stops the running solve of the competitor bound to deviceToken and
// records the time.
func (c *Competition) Pause(deviceToken string, now time.Time) (int64, error) {
	comp, ok := c.byToken[deviceToken]
	if !ok {
		return 0, ErrUnknownDevice
	}
	if c.phase != PhaseRunning {
		return 0, ErrWrongPhase
	}
	comp.materialize(c.rules.Timings, now)
	return comp.record(now)
}

// Advance materializes running anchors for every competitor whose pre-roll
// ended since the last observation. It must run before views are derived.
func (c *Competition) Advance(now time.Time) bool {
	changed := false
	for _, comp := range c.competitors {
		if comp.materialize(c.rules.Timings, now) {
			changed = true
		}
	}
	return changed
}

// Active reports whether any competitor is past idle.
func (c *Competition) Active() bool {
	for _, comp := range c.competitors {
		if comp.Armed() {
			return true
		}
	}
	return false
}

// ResetAll discards in-flight solves without recording them and clears the
// roster, pairs and jobs.
func (c *Competition) ResetAll() {
	for _, comp := range c.competitors {
		comp.disarm()
	}
	c.phase = PhaseRegistration
	c.competitors = nil
	c.byToken = make(map[string]*Competitor)
	c.byID = make(map[string]*Competitor)
	c.pairs = nil
	c.unpaired = ""
	c.jobs = nil
}
