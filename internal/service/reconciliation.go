package service

import (
	"strings"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/qualtrics"
)

// TotalRow is the key of the all-panels row in rendered stats.
const TotalRow = "Total"

// HistoryRecords converts a remote history feed into domain records.
func HistoryRecords(entries []qualtrics.HistoryEntry) []model.HistoryRecord {
	out := make([]model.HistoryRecord, len(entries))
	for i, e := range entries {
		out[i] = model.HistoryRecord{
			ContactID:           e.ContactID,
			Status:              e.Status,
			SentAt:              e.SentAt,
			OpenedAt:            e.OpenedAt,
			ResponseStartedAt:   e.ResponseStartedAt,
			ResponseCompletedAt: e.ResponseCompletedAt,
		}
	}
	return out
}

// MatchLinks pairs recipient links with generated remote links by external
// data reference. Matched links get their contact id and URL set; links
// without a remote counterpart, or whose counterpart lacks either field, are
// returned as skipped and left untouched.
func MatchLinks(links []*model.RecipientLink, remote []qualtrics.DistributionLink) (updated, skipped []*model.RecipientLink) {
	byExtRef := make(map[string]qualtrics.DistributionLink, len(remote))
	for _, r := range remote {
		byExtRef[r.ExternalDataReference] = r
	}
	for _, l := range links {
		r, ok := byExtRef[strings.ReplaceAll(l.ProfileID.String(), "-", "")]
		if !ok || r.ContactID == "" || r.Link == "" {
			skipped = append(skipped, l)
			continue
		}
		l.ContactID = r.ContactID
		l.URL = r.Link
		updated = append(updated, l)
	}
	return updated, skipped
}

// MergedRecord is a recipient link joined with its history record.
type MergedRecord struct {
	ProfileID         int64      `json:"profile_id"`
	ESSID             string     `json:"ess_id"`
	Panel             string     `json:"panel"`
	PanelID           int64      `json:"panel_pk"`
	Phone             string     `json:"phone"`
	Email             string     `json:"email"`
	FullName          string     `json:"full_name"`
	URL               string     `json:"url"`
	Status            string     `json:"status"`
	OpenedAt          *time.Time `json:"opened_at"`
	StartedAt         *time.Time `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at"`
	Finished          bool       `json:"finished"`
	Started           bool       `json:"started"`
	PartiallyFinished bool       `json:"partially_finished"`
	Failed            bool       `json:"failed"`

	record model.HistoryRecord
}

// LinkStatus classifies the record for a link distribution.
func (m MergedRecord) LinkStatus() model.LinkStatus { return model.LinkStatusOf(m.record) }

// MessageStatus classifies the record for a message distribution.
func (m MergedRecord) MessageStatus() model.MessageStatus { return model.MessageStatusOf(m.record) }

// MergeLinksAndHistory left-joins links with history records on contact id.
// A link without a record merges with an empty one. Links must have their
// profile loaded.
func MergeLinksAndHistory(links []*model.RecipientLink, history []model.HistoryRecord) []MergedRecord {
	byContact := make(map[string]model.HistoryRecord, len(history))
	for _, h := range history {
		byContact[h.ContactID] = h
	}
	out := make([]MergedRecord, 0, len(links))
	for _, l := range links {
		out = append(out, mergeRecord(l, byContact[l.ContactID]))
	}
	return out
}

func mergeRecord(l *model.RecipientLink, r model.HistoryRecord) MergedRecord {
	m := MergedRecord{
		URL:               l.URL,
		Status:            r.Status,
		OpenedAt:          qualtrics.ParseTime(r.OpenedAt),
		StartedAt:         qualtrics.ParseTime(r.ResponseStartedAt),
		CompletedAt:       qualtrics.ParseTime(r.ResponseCompletedAt),
		Finished:          r.HasFinished(),
		Started:           r.HasStarted(),
		PartiallyFinished: r.HasPartiallyFinished(),
		Failed:            r.HasFailed(),
		record:            r,
	}
	if p := l.Profile; p != nil {
		m.ProfileID = p.ID
		m.ESSID = p.ESSID
		m.Panel = p.Panel.Name
		m.PanelID = p.Panel.ID
		m.Phone = p.Phone
		m.Email = p.Email
		m.FullName = p.FullName()
	}
	return m
}

// PanelStats counts recipient statuses for one panel, or for all panels in
// the total row.
type PanelStats struct {
	PanelID int64          `json:"pk,omitempty"`
	Counts  map[string]int `json:"counts"`
	// Total is the number of recipients. The "opened" bucket is not added
	// since opened messages are counted as successes too.
	Total          int `json:"total"`
	TotalPanelists int `json:"total_panelists"`
}

// Stats holds per-panel status counts and, when more than one panel is
// involved, a total row.
type Stats struct {
	Panels map[string]*PanelStats `json:"panels"`
	Total  *PanelStats            `json:"total,omitempty"`
}

// Rows flattens the stats as rendered, keyed by panel name plus TotalRow.
func (s Stats) Rows() map[string]*PanelStats {
	rows := make(map[string]*PanelStats, len(s.Panels)+1)
	for name, p := range s.Panels {
		rows[name] = p
	}
	if s.Total != nil {
		rows[TotalRow] = s.Total
	}
	return rows
}

// LinkStats aggregates link statuses by panel. panelists maps panel ids to
// their number of panelists.
func LinkStats(merged []MergedRecord, panelists map[int64]int) Stats {
	running := make(map[string]int, len(model.LinkStatuses))
	for _, s := range model.LinkStatuses {
		running[string(s)] = 0
	}
	return aggregate(merged, panelists, running, func(m MergedRecord) []string {
		return []string{string(m.LinkStatus())}
	})
}

// MessageStats aggregates message statuses by panel. An opened message also
// counts as a success.
func MessageStats(merged []MergedRecord, panelists map[int64]int) Stats {
	running := make(map[string]int, len(model.MessageStatuses))
	for _, s := range model.MessageStatuses {
		running[string(s)] = 0
	}
	return aggregate(merged, panelists, running, func(m MergedRecord) []string {
		status := m.MessageStatus()
		if status == model.MessageOpened {
			return []string{string(model.MessageSuccess), string(status)}
		}
		return []string{string(status)}
	})
}

func aggregate(
	merged []MergedRecord,
	panelists map[int64]int,
	running map[string]int,
	classify func(MergedRecord) []string,
) Stats {
	panels := make(map[string]*PanelStats)
	for _, m := range merged {
		name := m.Panel
		if name == "" {
			name = "Unknown panel"
		}
		p, ok := panels[name]
		if !ok {
			p = &PanelStats{PanelID: m.PanelID, Counts: make(map[string]int)}
			p.TotalPanelists = panelists[m.PanelID]
			panels[name] = p
		}
		for _, status := range classify(m) {
			p.Counts[status]++
			running[status]++
		}
	}

	allPanelists := 0
	for _, p := range panels {
		for status, n := range p.Counts {
			if status != string(model.MessageOpened) {
				p.Total += n
			}
		}
		allPanelists += p.TotalPanelists
	}

	stats := Stats{Panels: panels}
	if len(panels) > 1 {
		stats.Total = &PanelStats{Counts: running, Total: len(merged), TotalPanelists: allPanelists}
	}
	return stats
}

// LinkCounters are the aggregate counters of a link distribution with the
// number of responses in progress. The platform counts finished responses
// as started too.
func LinkCounters(stats qualtrics.DistributionStats) qualtrics.DistributionStats {
	out := make(qualtrics.DistributionStats, len(stats)+1)
	for k, v := range stats {
		out[k] = v
	}
	out["in_progress"] = stats["started"] - stats["finished"]
	return out
}
