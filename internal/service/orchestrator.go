package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/pipeline"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/qualtrics"
)

// ErrExpirationRequired is returned when links are generated for a
// distribution without an expiration date.
var ErrExpirationRequired = errors.New("link distribution has no expiration date")

// EmailHeader carries the sender fields of email distributions. Empty
// fields fall back to the platform defaults.
type EmailHeader struct {
	FromEmail string
	FromName  string
	ReplyTo   string
}

// OrchestratorOptions groups dependencies for Orchestrator.
type OrchestratorOptions struct {
	Links    core.LinkDistributionRepository    // Required
	Messages core.MessageDistributionRepository // Required
	Platform core.SurveyPlatform                // Required
	// SendSurveyID is the survey attached to message distributions.
	SendSurveyID string // Required
	Header       EmailHeader
	Logger       *slog.Logger
	Now          func() time.Time
}

// Orchestrator runs the steps of the link and message pipelines. Every step
// re-reads its distribution, skips work whose remote reference is already
// recorded, performs one remote mutation and persists its result at once.
type Orchestrator struct {
	links        core.LinkDistributionRepository
	messages     core.MessageDistributionRepository
	platform     core.SurveyPlatform
	sendSurveyID string
	header       EmailHeader
	logger       *slog.Logger
	now          func() time.Time
}

// UpdateResult counts the outcome of recording generated links.
type UpdateResult struct {
	Updated int
	Skipped int
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	switch {
	case opts.Links == nil:
		return nil, errors.New("LinkDistributionRepository is required")
	case opts.Messages == nil:
		return nil, errors.New("MessageDistributionRepository is required")
	case opts.Platform == nil:
		return nil, errors.New("SurveyPlatform is required")
	case opts.SendSurveyID == "":
		return nil, errors.New("SendSurveyID is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		links:        opts.Links,
		messages:     opts.Messages,
		platform:     opts.Platform,
		sendSurveyID: opts.SendSurveyID,
		header:       opts.Header,
		logger:       logger.With("component", "orchestrator"),
		now:          now,
	}, nil
}

// MustNewOrchestrator constructs an Orchestrator and panics on error.
func MustNewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	o, err := NewOrchestrator(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create Orchestrator: %v", err))
	}
	return o
}

// State derives the pipeline state of a distribution from its persisted references.
func (o *Orchestrator) State(ctx context.Context, kind pipeline.Kind, id int64) (pipeline.State, error) {
	switch kind {
	case pipeline.KindLink:
		d, err := o.links.GetByID(ctx, id)
		if err != nil {
			return "", err
		}
		complete := false
		if d.Remote.IsSet() {
			links, err := o.links.Links(ctx, id)
			if err != nil {
				return "", err
			}
			complete = allComplete(links)
		}
		return pipeline.LinkState(d, complete), nil
	case pipeline.KindMessage:
		d, err := o.messages.GetByID(ctx, id)
		if err != nil {
			return "", err
		}
		return pipeline.MessageState(d), nil
	default:
		return "", fmt.Errorf("%w: %q", pipeline.ErrUnknownKind, kind)
	}
}

func allComplete(links []*model.RecipientLink) bool {
	if len(links) == 0 {
		return false
	}
	for _, l := range links {
		if !l.Complete() {
			return false
		}
	}
	return true
}

// RunStep executes one step of a pipeline. A step whose effect the derived
// state already records is skipped.
func (o *Orchestrator) RunStep(ctx context.Context, p pipeline.Payload) error {
	def, err := pipeline.For(p.Kind)
	if err != nil {
		return err
	}
	if _, ok := def.Step(p.Step); !ok {
		return fmt.Errorf("%s pipeline has no step %q", p.Kind, p.Step)
	}
	state, err := o.State(ctx, p.Kind, p.DistributionID)
	if err != nil {
		return fmt.Errorf("derive state: %w", err)
	}
	if def.Done(p.Step, state) {
		o.logger.InfoContext(ctx, "step already done",
			"kind", p.Kind, "distribution", p.DistributionID, "step", p.Step, "state", state)
		return nil
	}

	if p.Kind == pipeline.KindLink {
		return o.runLinkStep(ctx, p.Step, p.DistributionID)
	}
	return o.runMessageStep(ctx, p.Step, p.DistributionID)
}

func (o *Orchestrator) runLinkStep(ctx context.Context, step pipeline.StepName, id int64) error {
	switch step {
	case pipeline.StepEnsureMailingList:
		return o.EnsureMailingList(ctx, id)
	case pipeline.StepStartImport:
		return o.StartLinkImport(ctx, id)
	case pipeline.StepWaitForImport:
		d, err := o.links.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return o.WaitForImport(ctx, d.ListID, d.ImportID)
	case pipeline.StepGenerateLinks:
		return o.GenerateLinks(ctx, id)
	case pipeline.StepUpdateLinks:
		_, err := o.UpdateLinks(ctx, id)
		return err
	default:
		return fmt.Errorf("link pipeline has no step %q", step)
	}
}

func (o *Orchestrator) runMessageStep(ctx context.Context, step pipeline.StepName, id int64) error {
	switch step {
	case pipeline.StepEnsureTransactionBatch:
		return o.EnsureTransactionBatch(ctx, id)
	case pipeline.StepStartImport:
		return o.StartMessageImport(ctx, id)
	case pipeline.StepWaitForImport:
		d, err := o.messages.GetByID(ctx, id)
		if err != nil {
			return err
		}
		parent, err := o.links.GetByID(ctx, d.LinkDistributionID)
		if err != nil {
			return err
		}
		return o.WaitForImport(ctx, parent.ListID, d.ImportID)
	case pipeline.StepSendDistribution:
		return o.SendDistribution(ctx, id)
	default:
		return fmt.Errorf("message pipeline has no step %q", step)
	}
}

// EnsureMailingList creates the mailing list of a link distribution, named
// after its short uid.
func (o *Orchestrator) EnsureMailingList(ctx context.Context, id int64) error {
	d, err := o.links.GetByID(ctx, id)
	if err != nil {
		return err
	}
	log := o.logger.With("distribution", d.ShortUID())
	if d.ListID != "" {
		log.InfoContext(ctx, "using existing mailing list", "list_id", d.ListID)
		return nil
	}

	listID, err := o.platform.CreateMailingList(ctx, d.ShortUID())
	if err != nil {
		return fmt.Errorf("create mailing list: %w", err)
	}
	if err := o.links.UpdateRefs(ctx, id, core.RefUpdate{ListID: &listID}); err != nil {
		return fmt.Errorf("record mailing list %s: %w", listID, err)
	}
	log.InfoContext(ctx, "mailing list created", "list_id", listID)
	return nil
}

// StartLinkImport imports the frozen recipients into the distribution's mailing list.
func (o *Orchestrator) StartLinkImport(ctx context.Context, id int64) error {
	d, err := o.links.GetByID(ctx, id)
	if err != nil {
		return err
	}
	log := o.logger.With("distribution", d.ShortUID())
	if d.ImportID != "" {
		log.InfoContext(ctx, "using existing import", "import_id", d.ImportID)
		return nil
	}
	if d.ListID == "" {
		return fmt.Errorf("start import: %w: mailing list", pipeline.ErrMissingRef)
	}

	links, err := o.links.Links(ctx, id)
	if err != nil {
		return fmt.Errorf("load recipient links: %w", err)
	}
	importID, err := o.platform.StartImport(ctx, d.ListID, linkContacts(links, false), "")
	if err != nil {
		return fmt.Errorf("start import: %w", err)
	}
	if err := o.links.UpdateRefs(ctx, id, core.RefUpdate{ImportID: &importID}); err != nil {
		return fmt.Errorf("record import %s: %w", importID, err)
	}
	log.InfoContext(ctx, "contact import started", "import_id", importID, "contacts", len(links))
	return nil
}

// WaitForImport checks the progress of an import once. An unfinished import
// yields ErrImportInProgress.
func (o *Orchestrator) WaitForImport(ctx context.Context, listID, importID string) error {
	if listID == "" || importID == "" {
		return fmt.Errorf("%w: list and import ids are needed to track an import, got %q, %q",
			pipeline.ErrMissingRef, listID, importID)
	}
	pct, err := o.platform.ImportProgress(ctx, listID, importID)
	if err != nil {
		return fmt.Errorf("import progress: %w", err)
	}
	if pct < 100 {
		o.logger.InfoContext(ctx, "import in progress", "list_id", listID, "import_id", importID, "progress", pct)
		return pipeline.ErrImportInProgress
	}
	return nil
}

// GenerateLinks creates the individual-link distribution for the imported list.
func (o *Orchestrator) GenerateLinks(ctx context.Context, id int64) error {
	d, err := o.links.GetByID(ctx, id)
	if err != nil {
		return err
	}
	log := o.logger.With("distribution", d.ShortUID())
	if d.Remote.IsSet() {
		log.InfoContext(ctx, "using existing links", "remote_id", d.Remote.ID)
		return nil
	}
	if d.ListID == "" {
		return fmt.Errorf("generate links: %w: mailing list", pipeline.ErrMissingRef)
	}
	if d.ExpirationDate == nil {
		return ErrExpirationRequired
	}

	remoteID, err := o.platform.GenerateLinks(ctx, qualtrics.LinkRequest{
		SurveyID:       d.SurveyID,
		ExpirationDate: *d.ExpirationDate,
		Description:    d.Description,
		ListID:         d.ListID,
	})
	if err != nil {
		return fmt.Errorf("generate links: %w", err)
	}
	created := o.now().UTC()
	if err := o.links.UpdateRefs(ctx, id, core.RefUpdate{
		Remote: &model.RemoteRef{ID: remoteID, CreatedAt: &created},
	}); err != nil {
		return fmt.Errorf("record link distribution %s: %w", remoteID, err)
	}
	log.InfoContext(ctx, "links generated", "remote_id", remoteID)
	return nil
}

// UpdateLinks fetches the generated links, bypassing any cache, and records
// contact ids and URLs on the matching recipient links.
func (o *Orchestrator) UpdateLinks(ctx context.Context, id int64) (UpdateResult, error) {
	d, err := o.links.GetByID(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	if !d.Remote.IsSet() {
		return UpdateResult{}, fmt.Errorf("update links: %w: link distribution", pipeline.ErrMissingRef)
	}
	log := o.logger.With("distribution", d.ShortUID())

	remote, err := o.platform.DistributionLinks(ctx, d.Remote.ID, d.SurveyID)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("fetch distribution links: %w", err)
	}
	links, err := o.links.Links(ctx, id)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("load recipient links: %w", err)
	}

	updated, skipped := MatchLinks(links, remote)
	for _, l := range skipped {
		log.WarnContext(ctx, "no usable remote link", "profile", l.ProfileID)
	}
	if len(updated) > 0 {
		if _, err := o.links.UpdateLinks(ctx, updated); err != nil {
			return UpdateResult{}, fmt.Errorf("record links: %w", err)
		}
	}
	res := UpdateResult{Updated: len(updated), Skipped: len(skipped)}
	log.InfoContext(ctx, "links recorded", "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}

// EnsureTransactionBatch creates the transaction batch of a message distribution.
func (o *Orchestrator) EnsureTransactionBatch(ctx context.Context, id int64) error {
	d, err := o.messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	log := o.logger.With("distribution", d.ShortUID())
	if d.BatchID != "" {
		log.WarnContext(ctx, "using existing transaction batch", "batch_id", d.BatchID)
		return nil
	}

	batchID, err := o.platform.CreateTransactionBatch(ctx)
	if err != nil {
		return fmt.Errorf("create transaction batch: %w", err)
	}
	if err := o.messages.UpdateRefs(ctx, id, core.RefUpdate{BatchID: &batchID}); err != nil {
		return fmt.Errorf("record transaction batch %s: %w", batchID, err)
	}
	log.InfoContext(ctx, "transaction batch created", "batch_id", batchID)
	return nil
}

// StartMessageImport imports the frozen recipients, with their survey link
// as transaction data, into the link distribution's mailing list.
func (o *Orchestrator) StartMessageImport(ctx context.Context, id int64) error {
	d, err := o.messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	log := o.logger.With("distribution", d.ShortUID())
	if d.ImportID != "" {
		log.InfoContext(ctx, "using existing import", "import_id", d.ImportID)
		return nil
	}
	if d.BatchID == "" {
		return fmt.Errorf("start import: %w: transaction batch", pipeline.ErrMissingRef)
	}
	parent, err := o.links.GetByID(ctx, d.LinkDistributionID)
	if err != nil {
		return fmt.Errorf("load link distribution: %w", err)
	}
	if parent.ListID == "" {
		return fmt.Errorf("start import: %w: mailing list of %s", pipeline.ErrMissingRef, parent.ShortUID())
	}

	recipients, err := o.messages.Recipients(ctx, id)
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	importID, err := o.platform.StartImport(ctx, parent.ListID, linkContacts(recipients, true), d.BatchID)
	if err != nil {
		return fmt.Errorf("start import: %w", err)
	}
	if err := o.messages.UpdateRefs(ctx, id, core.RefUpdate{ImportID: &importID}); err != nil {
		return fmt.Errorf("record import %s: %w", importID, err)
	}
	log.InfoContext(ctx, "contact import started", "import_id", importID, "contacts", len(recipients))
	return nil
}

// SendDistribution schedules the email or SMS for the imported batch. A
// fallback is sent at its primary's send date.
func (o *Orchestrator) SendDistribution(ctx context.Context, id int64) error {
	d, err := o.messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	log := o.logger.With("distribution", d.ShortUID())
	if d.Remote.IsSet() {
		log.InfoContext(ctx, "distribution already sent", "remote_id", d.Remote.ID)
		return nil
	}
	if d.BatchID == "" {
		return fmt.Errorf("send distribution: %w: transaction batch", pipeline.ErrMissingRef)
	}

	var parent *model.MessageDistribution
	if d.IsFallback() {
		parent, err = o.messages.GetByID(ctx, *d.FallbackOf)
		if err != nil {
			return fmt.Errorf("load primary distribution: %w", err)
		}
	}
	var sendDate time.Time
	if at := d.EffectiveSendDate(parent); at != nil {
		sendDate = *at
	}

	var remoteID string
	if d.IsEmail() {
		remoteID, err = o.platform.SendEmail(ctx, qualtrics.EmailDistribution{
			BatchID:   d.BatchID,
			SurveyID:  o.sendSurveyID,
			SendDate:  sendDate,
			MessageID: d.MessageID,
			SubjectID: d.SubjectID,
			FromEmail: o.header.FromEmail,
			FromName:  o.header.FromName,
			ReplyTo:   o.header.ReplyTo,
		})
	} else {
		remoteID, err = o.platform.SendSMS(ctx, qualtrics.SMSDistribution{
			Name:      d.ShortUID(),
			SurveyID:  o.sendSurveyID,
			BatchID:   d.BatchID,
			MessageID: d.MessageID,
			SendDate:  sendDate,
		})
	}
	if err != nil {
		return fmt.Errorf("send %s distribution: %w", d.ContactMode, err)
	}

	created := o.now().UTC()
	if err := o.messages.UpdateRefs(ctx, id, core.RefUpdate{
		Remote: &model.RemoteRef{ID: remoteID, CreatedAt: &created},
	}); err != nil {
		return fmt.Errorf("record distribution %s: %w", remoteID, err)
	}
	log.InfoContext(ctx, "distribution sent", "mode", d.ContactMode.Label(), "remote_id", remoteID)
	return nil
}
