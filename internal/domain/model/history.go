package model

// Delivery status tokens reported by the distribution history feed.
const (
	HistoryPending                 = "Pending"
	HistorySurveyStarted           = "SurveyStarted"
	HistoryOpened                  = "Opened"
	HistorySuccess                 = "Success"
	HistorySoftBounce              = "SoftBounce"
	HistoryHardBounce              = "HardBounce"
	HistorySurveyFinished          = "SurveyFinished"
	HistorySurveyPartiallyFinished = "SurveyPartiallyFinished"
)

// HistoryRecord is one per-recipient entry of a history feed. It is read
// from the remote platform and never persisted.
type HistoryRecord struct {
	ContactID           string `json:"contactId"`
	Status              string `json:"status"`
	SentAt              string `json:"sentAt,omitempty"`
	OpenedAt            string `json:"openedAt,omitempty"`
	ResponseStartedAt   string `json:"responseStartedAt,omitempty"`
	ResponseCompletedAt string `json:"responseCompletedAt,omitempty"`
}

// HasFinished reports a completed survey.
func (r HistoryRecord) HasFinished() bool { return r.Status == HistorySurveyFinished }

// HasPartiallyFinished reports a partial response whose time limit passed.
func (r HistoryRecord) HasPartiallyFinished() bool {
	return r.Status == HistorySurveyPartiallyFinished
}

// HasStarted reports a survey started but not completed.
func (r HistoryRecord) HasStarted() bool { return r.Status == HistorySurveyStarted }

// HasOpened reports a message that was opened.
func (r HistoryRecord) HasOpened() bool { return r.Status == HistoryOpened }

// IsSuccess reports a delivered message.
func (r HistoryRecord) IsSuccess() bool { return r.Status == HistorySuccess }

// IsSoftBounced reports a temporary delivery failure.
func (r HistoryRecord) IsSoftBounced() bool { return r.Status == HistorySoftBounce }

// IsHardBounced reports a permanent delivery failure.
func (r HistoryRecord) IsHardBounced() bool { return r.Status == HistoryHardBounce }

// HasFailed reports any status outside the known non-failure tokens,
// including an empty one.
func (r HistoryRecord) HasFailed() bool {
	switch r.Status {
	case HistorySuccess, HistorySurveyFinished, HistorySurveyStarted, HistoryPending,
		HistoryOpened, HistoryHardBounce, HistorySoftBounce:
		return false
	default:
		return true
	}
}

// LinkStatus classifies a recipient of a link distribution.
type LinkStatus string

const (
	LinkNotStarted        LinkStatus = "not_started"
	LinkStarted           LinkStatus = "started"
	LinkFinished          LinkStatus = "finished"
	LinkPartiallyFinished LinkStatus = "partially_finished"
	LinkFailed            LinkStatus = "failed"
)

// LinkStatuses lists link statuses in display order.
var LinkStatuses = []LinkStatus{LinkNotStarted, LinkStarted, LinkFinished, LinkPartiallyFinished, LinkFailed}

// LinkStatusOf classifies a history record with precedence finished,
// started, partially finished, failed, and not started otherwise.
func LinkStatusOf(r HistoryRecord) LinkStatus {
	switch {
	case r.HasFinished():
		return LinkFinished
	case r.HasStarted():
		return LinkStarted
	case r.HasPartiallyFinished():
		return LinkPartiallyFinished
	case r.HasFailed():
		return LinkFailed
	default:
		return LinkNotStarted
	}
}

// MessageStatus classifies a recipient of a message distribution.
type MessageStatus string

const (
	MessageSent        MessageStatus = "sent"
	MessageSuccess     MessageStatus = "success"
	MessageOpened      MessageStatus = "opened"
	MessageSoftBounced MessageStatus = "soft_bounced"
	MessageHardBounced MessageStatus = "hard_bounced"
	MessageFailed      MessageStatus = "failed"
)

// MessageStatuses lists message statuses in display order.
var MessageStatuses = []MessageStatus{
	MessageSent, MessageSuccess, MessageOpened, MessageSoftBounced, MessageHardBounced, MessageFailed,
}

// MessageStatusOf classifies a history record with precedence success,
// opened, soft bounce, hard bounce, failed, and sent otherwise.
func MessageStatusOf(r HistoryRecord) MessageStatus {
	switch {
	case r.IsSuccess():
		return MessageSuccess
	case r.HasOpened():
		return MessageOpened
	case r.IsSoftBounced():
		return MessageSoftBounced
	case r.IsHardBounced():
		return MessageHardBounced
	case r.HasFailed():
		return MessageFailed
	default:
		return MessageSent
	}
}

// FilterCompletion returns the contact ids of history records matching target.
func FilterCompletion(history []HistoryRecord, target Target) map[string]struct{} {
	out := make(map[string]struct{}, len(history))
	for _, r := range history {
		switch target {
		case TargetFinished:
			if !r.HasFinished() {
				continue
			}
		case TargetNotFinished:
			if r.HasFinished() {
				continue
			}
		}
		out[r.ContactID] = struct{}{}
	}
	return out
}
