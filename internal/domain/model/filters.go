package model

// LinksForCompletionStatus keeps links whose contact appears in the history
// with a completion status matching target.
func LinksForCompletionStatus(links []*RecipientLink, target Target, history []HistoryRecord) []*RecipientLink {
	ids := FilterCompletion(history, target)
	out := make([]*RecipientLink, 0, len(links))
	for _, l := range links {
		if _, ok := ids[l.ContactID]; ok {
			out = append(out, l)
		}
	}
	return out
}

// LinksForContactMode keeps links whose panelist is reachable through mode,
// exclusively so when only is set. Links without a loaded profile are dropped.
func LinksForContactMode(links []*RecipientLink, mode ContactMode, only bool) []*RecipientLink {
	out := make([]*RecipientLink, 0, len(links))
	for _, l := range links {
		if l.Profile != nil && l.Profile.CanReceive(mode, only) {
			out = append(out, l)
		}
	}
	return out
}

// CandidateStats summarises who a message distribution can reach.
type CandidateStats struct {
	ContactMode  int `json:"contact_mode"`
	FallbackMode int `json:"fallback_mode"`
	Total        int `json:"total"`
	Unreachable  int `json:"unreachable"`
}

// Candidates selects the recipients of d among the links of its link
// distribution: completion filter first, then reachability. A fallback only
// targets panelists its own channel is the sole way to reach.
func (d *MessageDistribution) Candidates(links []*RecipientLink, history []HistoryRecord) []*RecipientLink {
	selected := LinksForCompletionStatus(links, d.Target, history)
	return LinksForContactMode(selected, d.ContactMode, d.IsFallback())
}

// CandidateStats counts reachable panelists through the distribution's
// channel and through the fallback channel alone.
func (d *MessageDistribution) CandidateStats(links []*RecipientLink, history []HistoryRecord) CandidateStats {
	selected := LinksForCompletionStatus(links, d.Target, history)
	contact := len(LinksForContactMode(selected, d.ContactMode, false))
	fallback := len(LinksForContactMode(selected, d.ContactMode.Other(), true))
	total := contact + fallback
	return CandidateStats{
		ContactMode:  contact,
		FallbackMode: fallback,
		Total:        total,
		Unreachable:  len(selected) - total,
	}
}
