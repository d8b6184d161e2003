package pipeline

import "github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"

// State is the progress of a distribution through its pipeline.
type State string

const (
	StateNotStarted     State = "not_started"
	StateListCreated    State = "list_created"
	StateBatchCreated   State = "batch_created"
	StateImportStarted  State = "import_started"
	StateImportComplete State = "import_complete"
	StateLinksGenerated State = "links_generated"
	StateLinksPersisted State = "links_persisted"
	StateSent           State = "sent"
)

var (
	linkStates = []State{
		StateNotStarted, StateListCreated, StateImportStarted,
		StateImportComplete, StateLinksGenerated, StateLinksPersisted,
	}
	messageStates = []State{
		StateNotStarted, StateBatchCreated, StateImportStarted, StateImportComplete, StateSent,
	}
)

// LinkState derives the state from the persisted remote references, taking
// the furthest one present. Import completion is only known remotely, so a
// started import stays in StateImportStarted until links exist.
func LinkState(d *model.LinkDistribution, linksComplete bool) State {
	switch {
	case d.Remote.IsSet() && linksComplete:
		return StateLinksPersisted
	case d.Remote.IsSet():
		return StateLinksGenerated
	case d.ImportID != "":
		return StateImportStarted
	case d.ListID != "":
		return StateListCreated
	default:
		return StateNotStarted
	}
}

// MessageState derives the state of a message distribution the same way.
func MessageState(d *model.MessageDistribution) State {
	switch {
	case d.Remote.IsSet():
		return StateSent
	case d.ImportID != "":
		return StateImportStarted
	case d.BatchID != "":
		return StateBatchCreated
	default:
		return StateNotStarted
	}
}
