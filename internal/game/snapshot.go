package game

import "time"

// State derives the broadcast view at now. Call Advance first so running
// anchors are in place.
func (c *Competition) State(now time.Time) StatePayload {
	st := StatePayload{
		Type:        TypeState,
		Phase:       c.phase,
		ServerNow:   now.UnixMilli(),
		Attempts:    c.rules.Attempts,
		Competitors: make([]CompetitorView, 0, len(c.competitors)),
		Pairs:       c.Pairs(),
		Jobs:        c.Jobs(),
	}
	if st.Pairs == nil {
		st.Pairs = []Pair{}
	}
	if id, ok := c.Unpaired(); ok {
		st.UnpairedID = &id
	}

	for _, comp := range c.competitors {
		st.Competitors = append(st.Competitors, c.viewOf(comp, now))
	}
	return st
}

func (c *Competition) viewOf(comp *Competitor, now time.Time) CompetitorView {
	v := CompetitorView{
		ID:           comp.id,
		Name:         comp.name,
		Attempts:     make([]*int64, len(comp.attempts)),
		AttemptsText: make([]string, len(comp.attempts)),
		Live:         Derive(comp, c.rules.Timings, now),
	}
	for i := range comp.attempts {
		if ms, ok := comp.Attempt(i); ok {
			v.Attempts[i] = &ms
			v.AttemptsText[i] = FormatMs(ms)
		}
	}
	return v
}
