package game

import (
	"fmt"
	"time"
)

// Pair is two competitors who issue tasks to each other for the round.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

func (p Pair) partnerOf(id string) (string, bool) {
	switch id {
	case p.A:
		return p.B, true
	case p.B:
		return p.A, true
	}
	return "", false
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobConfirmed JobStatus = "confirmed"
)

// Job obliges IssuerID to scramble for RecipientID's attempt slot.
type Job struct {
	ID           string    `json:"id"`
	IssuerID     string    `json:"scramblerId"`
	RecipientID  string    `json:"solverId"`
	AttemptIndex int       `json:"attemptIndex"`
	Scramble     string    `json:"scramble"`
	Status       JobStatus `json:"status"`
}

// buildPairs pairs competitors 2i and 2i+1 in roster order. The trailing
// competitor of an odd roster is returned as unpaired.
func buildPairs(roster []*Competitor) ([]Pair, string) {
	pairs := make([]Pair, 0, len(roster)/2)
	for i := 0; i+1 < len(roster); i += 2 {
		pairs = append(pairs, Pair{A: roster[i].id, B: roster[i+1].id})
	}
	var unpaired string
	if len(roster)%2 == 1 {
		unpaired = roster[len(roster)-1].id
	}
	return pairs, unpaired
}

func (c *Competition) Pairs() []Pair { return append([]Pair(nil), c.pairs...) }

// Unpaired returns the competitor left out of this round, if any.
func (c *Competition) Unpaired() (string, bool) {
	return c.unpaired, c.unpaired != ""
}

func (c *Competition) Jobs() []Job {
	out := make([]Job, 0, len(c.jobs))
	for _, j := range c.jobs {
		out = append(out, *j)
	}
	return out
}

// PartnerOf returns the id paired with the given competitor.
func (c *Competition) PartnerOf(id string) (string, bool) {
	for _, p := range c.pairs {
		if other, ok := p.partnerOf(id); ok {
			return other, true
		}
	}
	return "", false
}

func (c *Competition) job(id string) *Job {
	for _, j := range c.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// issueForPair creates one job per member that still has a free slot, with
// the partner as issuer.
func (c *Competition) issueForPair(p Pair, now time.Time) int {
	n := 0
	if c.issueJob(p.B, p.A, now) {
		n++
	}
	if c.issueJob(p.A, p.B, now) {
		n++
	}
	return n
}

func (c *Competition) issueJob(issuerID, recipientID string, now time.Time) bool {
	recipient, ok := c.byID[recipientID]
	if !ok {
		return false
	}
	idx, ok := recipient.nextSlot()
	if !ok {
		return false
	}
	c.jobs = append(c.jobs, &Job{
		ID:           fmt.Sprintf("%s:%s:%d:%d", issuerID, recipientID, idx, now.UnixNano()),
		IssuerID:     issuerID,
		RecipientID:  recipientID,
		AttemptIndex: idx,
		Scramble:     c.scrambler.Generate(),
		Status:       JobPending,
	})
	return true
}

func (c *Competition) hasPendingJobFor(recipientID string) bool {
	for _, j := range c.jobs {
		if j.RecipientID == recipientID && j.Status == JobPending {
			return true
		}
	}
	return false
}

// NextAttempt issues a fresh job to every paired competitor that has a free
// slot, is idle and has nothing pending. Jobs are never chained
// automatically; an operator triggers each subsequent attempt.
func (c *Competition) NextAttempt(now time.Time) (int, error) {
	if c.phase != PhaseRunning {
		return 0, ErrWrongPhase
	}
	issued := 0
	for _, p := range c.pairs {
		for _, dir := range [2][2]string{{p.B, p.A}, {p.A, p.B}} {
			issuerID, recipientID := dir[0], dir[1]
			recipient, ok := c.byID[recipientID]
			if !ok || recipient.Armed() || c.hasPendingJobFor(recipientID) {
				continue
			}
			if c.issueJob(issuerID, recipientID, now) {
				issued++
			}
		}
	}
	if issued == 0 {
		return 0, ErrNothingToIssue
	}
	return issued, nil
}
