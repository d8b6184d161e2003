// Package pipeline describes the distribution workflows as typed step lists
// with a derived state machine and a per-step retry policy.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
)

// Kind identifies a workflow.
type Kind string

const (
	KindLink    Kind = "link_distribution"
	KindMessage Kind = "message_distribution"
)

// ErrUnknownKind is returned for a payload naming no known workflow.
var ErrUnknownKind = errors.New("unknown pipeline kind")

// JobType maps the workflow to the queue it runs on.
func (k Kind) JobType() model.JobType {
	if k == KindMessage {
		return model.JobTypeMessagePipeline
	}
	return model.JobTypeLinkPipeline
}

// StepName is the closed set of pipeline steps.
type StepName string

const (
	StepEnsureMailingList      StepName = "ensure_mailing_list"
	StepEnsureTransactionBatch StepName = "ensure_transaction_batch"
	StepStartImport            StepName = "start_import"
	StepWaitForImport          StepName = "wait_for_import"
	StepGenerateLinks          StepName = "generate_links"
	StepUpdateLinks            StepName = "update_links"
	StepSendDistribution       StepName = "send_distribution"
)

// waitDelay gives the platform time to start processing an import before
// the first progress check.
const waitDelay = 5 * time.Second

// Step is one unit of work of a pipeline.
type Step struct {
	Name StepName
	// Produces is the state reached once the step succeeded.
	Produces State
	Retry    RetryPolicy
	// Delay postpones the step after its predecessor completes.
	Delay time.Duration
}

// Definition is an ordered list of steps for one Kind.
type Definition struct {
	Kind   Kind
	States []State
	Steps  []Step

	next map[State]StepName
}

func newDefinition(kind Kind, states []State, steps []Step) Definition {
	d := Definition{Kind: kind, States: states, Steps: steps, next: make(map[State]StepName, len(states))}
	for _, s := range states {
		for _, step := range steps {
			if d.rank(step.Produces) > d.rank(s) {
				d.next[s] = step.Name
				break
			}
		}
	}
	return d
}

// LinkPipeline creates the mailing list, imports the recipients, generates
// individual links and records them locally.
func LinkPipeline() Definition {
	retry := DefaultRetryPolicy()
	return newDefinition(KindLink, linkStates, []Step{
		{Name: StepEnsureMailingList, Produces: StateListCreated, Retry: retry},
		{Name: StepStartImport, Produces: StateImportStarted, Retry: retry},
		{Name: StepWaitForImport, Produces: StateImportComplete, Retry: retry.WithImportInProgress(), Delay: waitDelay},
		{Name: StepGenerateLinks, Produces: StateLinksGenerated, Retry: retry},
		{Name: StepUpdateLinks, Produces: StateLinksPersisted, Retry: retry},
	})
}

// MessagePipeline creates a transaction batch, imports the recipients with
// their links as transaction data and schedules the email or SMS.
func MessagePipeline() Definition {
	retry := DefaultRetryPolicy()
	return newDefinition(KindMessage, messageStates, []Step{
		{Name: StepEnsureTransactionBatch, Produces: StateBatchCreated, Retry: retry},
		{Name: StepStartImport, Produces: StateImportStarted, Retry: retry},
		{Name: StepWaitForImport, Produces: StateImportComplete, Retry: retry.WithImportInProgress(), Delay: waitDelay},
		{Name: StepSendDistribution, Produces: StateSent, Retry: retry},
	})
}

// For returns the definition of kind.
func For(kind Kind) (Definition, error) {
	switch kind {
	case KindLink:
		return LinkPipeline(), nil
	case KindMessage:
		return MessagePipeline(), nil
	default:
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// First returns the entry step.
func (d Definition) First() Step { return d.Steps[0] }

// Step looks up a step by name.
func (d Definition) Step(name StepName) (Step, bool) {
	for _, s := range d.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// Next returns the step following name, or false at the end of the pipeline.
func (d Definition) Next(name StepName) (Step, bool) {
	for i, s := range d.Steps {
		if s.Name == name && i+1 < len(d.Steps) {
			return d.Steps[i+1], true
		}
	}
	return Step{}, false
}

// StepFor returns the step that moves a distribution out of state, or false
// when the pipeline is finished.
func (d Definition) StepFor(state State) (Step, bool) {
	name, ok := d.next[state]
	if !ok {
		return Step{}, false
	}
	return d.Step(name)
}

// Done reports whether the effect of step is already recorded in state.
func (d Definition) Done(step StepName, state State) bool {
	s, ok := d.Step(step)
	if !ok {
		return false
	}
	return d.rank(state) >= d.rank(s.Produces)
}

func (d Definition) rank(s State) int {
	for i, candidate := range d.States {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Payload is the job payload of one pipeline step.
type Payload struct {
	Kind           Kind     `json:"kind"`
	DistributionID int64    `json:"distribution_id"`
	Step           StepName `json:"step"`
}

// DecodePayload parses a job payload.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode pipeline payload: %w", err)
	}
	if p.DistributionID <= 0 {
		return Payload{}, errors.New("pipeline payload: distribution_id is required")
	}
	if _, err := For(p.Kind); err != nil {
		return Payload{}, err
	}
	return p, nil
}
