package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/pipeline"
	apperrors "github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/errors"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/qualtrics"
	"github.com/google/uuid"
)

// ErrPipelineComplete is returned when a finished pipeline is started again.
var ErrPipelineComplete = errors.New("pipeline already complete")

// payloadDistributionField is the job payload key holding the distribution id.
const payloadDistributionField = "distribution_id"

// PipelineStater derives the pipeline state of a distribution.
type PipelineStater interface {
	State(ctx context.Context, kind pipeline.Kind, id int64) (pipeline.State, error)
}

// DistributionServiceOptions groups dependencies for DistributionService.
type DistributionServiceOptions struct {
	Links    core.LinkDistributionRepository    // Required
	Messages core.MessageDistributionRepository // Required
	Profiles core.ProfileRepository             // Required
	Jobs     core.JobRepository                 // Required
	States   PipelineStater                     // Required
	Lookup   *LookupService                     // Required
	Platform core.SurveyPlatform                // Required
	// SendSurveyID is the survey message distributions are sent with.
	SendSurveyID string // Required
	Logger       *slog.Logger
	Now          func() time.Time
}

// DistributionService manages link and message distributions: creation,
// recipient freezing, pipeline start and reporting.
type DistributionService struct {
	links        core.LinkDistributionRepository
	messages     core.MessageDistributionRepository
	profiles     core.ProfileRepository
	jobs         core.JobRepository
	states       PipelineStater
	lookup       *LookupService
	platform     core.SurveyPlatform
	sendSurveyID string
	logger       *slog.Logger
	now          func() time.Time
}

// NewDistributionService constructs a DistributionService.
func NewDistributionService(opts DistributionServiceOptions) (*DistributionService, error) {
	switch {
	case opts.Links == nil:
		return nil, errors.New("LinkDistributionRepository is required")
	case opts.Messages == nil:
		return nil, errors.New("MessageDistributionRepository is required")
	case opts.Profiles == nil:
		return nil, errors.New("ProfileRepository is required")
	case opts.Jobs == nil:
		return nil, errors.New("JobRepository is required")
	case opts.States == nil:
		return nil, errors.New("PipelineStater is required")
	case opts.Lookup == nil:
		return nil, errors.New("LookupService is required")
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
	return &DistributionService{
		links:        opts.Links,
		messages:     opts.Messages,
		profiles:     opts.Profiles,
		jobs:         opts.Jobs,
		states:       opts.States,
		lookup:       opts.Lookup,
		platform:     opts.Platform,
		sendSurveyID: opts.SendSurveyID,
		logger:       logger.With("component", "distribution_service"),
		now:          now,
	}, nil
}

// MustNewDistributionService constructs a DistributionService and panics on error.
func MustNewDistributionService(opts DistributionServiceOptions) *DistributionService {
	svc, err := NewDistributionService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create DistributionService: %v", err))
	}
	return svc
}

// CreateLinkDistribution validates and stores a link distribution.
func (s *DistributionService) CreateLinkDistribution(
	ctx context.Context,
	req *model.CreateLinkDistributionRequest,
) (*model.LinkDistribution, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if req.ExpirationDate != nil && !req.ExpirationDate.After(s.now()) {
		return nil, apperrors.ValidationField("expiration_date", "must be in the future")
	}
	d, err := s.links.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create link distribution: %w", err)
	}
	s.logger.InfoContext(ctx, "link distribution created", "distribution", d.ShortUID(), "survey_id", d.SurveyID)
	return d, nil
}

// CreateMessageDistribution validates and stores a primary message
// distribution. Fallbacks are created with AddFallback.
func (s *DistributionService) CreateMessageDistribution(
	ctx context.Context,
	req *model.CreateMessageDistributionRequest,
) (*model.MessageDistribution, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if req.FallbackOf != nil {
		return nil, apperrors.ValidationField("fallback_of", "fallbacks are added to an existing distribution")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if _, err := s.links.GetByID(ctx, req.LinkDistributionID); err != nil {
		return nil, fmt.Errorf("load link distribution %d: %w", req.LinkDistributionID, err)
	}
	d, err := s.messages.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create message distribution: %w", err)
	}
	s.logger.InfoContext(ctx, "message distribution created",
		"distribution", d.ShortUID(), "mode", d.ContactMode, "target", d.Target)
	return d, nil
}

// AddFallback attaches a distribution through the other channel to a
// primary. It shares the primary's link distribution, target and
// description.
func (s *DistributionService) AddFallback(
	ctx context.Context,
	primaryID int64,
	messageID, subjectID string,
) (*model.MessageDistribution, error) {
	primary, err := s.messages.GetByID(ctx, primaryID)
	if err != nil {
		return nil, err
	}
	if !primary.CanAddFallback() {
		return nil, apperrors.Wrap(model.ErrFallbackNotAllowed, apperrors.ErrCodeConflict,
			fmt.Sprintf("distribution %s", primary.ShortUID()))
	}
	mode := primary.ContactMode.Other()
	if mode != model.ContactModeEmail {
		subjectID = ""
	}
	req := &model.CreateMessageDistributionRequest{
		Description:        primary.Description,
		LinkDistributionID: primary.LinkDistributionID,
		ContactMode:        mode,
		Target:             primary.Target,
		MessageID:          messageID,
		SubjectID:          subjectID,
		FallbackOf:         &primary.ID,
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	fallback, err := s.messages.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create fallback of %s: %w", primary.ShortUID(), err)
	}
	s.logger.InfoContext(ctx, "fallback added",
		"distribution", primary.ShortUID(), "fallback", fallback.ShortUID(), "mode", mode)
	return fallback, nil
}

// UpdateLinkDescription renames a link distribution.
func (s *DistributionService) UpdateLinkDescription(ctx context.Context, id int64, description string) error {
	description = strings.TrimSpace(description)
	if err := model.ValidateDescription(description); err != nil {
		return apperrors.ValidationField("description", err.Error())
	}
	return s.links.UpdateDescription(ctx, id, description)
}

// UpdateMessageDescription renames a primary message distribution and its fallback.
func (s *DistributionService) UpdateMessageDescription(ctx context.Context, id int64, description string) error {
	description = strings.TrimSpace(description)
	if err := model.ValidateDescription(description); err != nil {
		return apperrors.ValidationField("description", err.Error())
	}
	d, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d.IsFallback() {
		return apperrors.Validation("a fallback is renamed through its primary distribution")
	}
	if err := s.messages.UpdateDescription(ctx, id, description); err != nil {
		return fmt.Errorf("rename %s: %w", d.ShortUID(), err)
	}
	if d.HasFallback() {
		if err := s.messages.UpdateDescription(ctx, *d.FallbackID, description); err != nil {
			return fmt.Errorf("rename fallback of %s: %w", d.ShortUID(), err)
		}
	}
	return nil
}

// SetExpirationDate sets the date the links of a distribution stop working.
// It cannot change once links are generated.
func (s *DistributionService) SetExpirationDate(ctx context.Context, id int64, at time.Time) error {
	d, err := s.links.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d.Remote.IsSet() {
		return apperrors.Conflictf("links of %s are already generated", d.ShortUID())
	}
	if !at.After(s.now()) {
		return apperrors.ValidationField("expiration_date", "must be in the future")
	}
	return s.links.SetExpirationDate(ctx, id, at.UTC())
}

// DeleteLinkDistribution removes a link distribution whose links were never
// given an expiration date, with its message distributions and pending jobs.
func (s *DistributionService) DeleteLinkDistribution(ctx context.Context, id int64) error {
	d, err := s.links.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !d.CanDelete() {
		return apperrors.Wrap(model.ErrNotDeletable, apperrors.ErrCodeConflict,
			fmt.Sprintf("link distribution %s has an expiration date", d.ShortUID()))
	}
	messages, err := s.messages.ListByLinkDistribution(ctx, id)
	if err != nil {
		return fmt.Errorf("list message distributions of %s: %w", d.ShortUID(), err)
	}
	for _, m := range messages {
		s.dropPendingJobs(ctx, pipeline.KindMessage, m.ID)
	}
	s.dropPendingJobs(ctx, pipeline.KindLink, id)

	if err := s.links.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete link distribution %s: %w", d.ShortUID(), err)
	}
	s.logger.InfoContext(ctx, "link distribution deleted", "distribution", d.ShortUID())
	return nil
}

// DeleteMessageDistribution removes a message distribution that was neither
// sent nor scheduled, with its fallback.
func (s *DistributionService) DeleteMessageDistribution(ctx context.Context, id int64) error {
	d, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	scheduled := d.SendDate
	if d.IsFallback() {
		parent, err := s.messages.GetByID(ctx, *d.FallbackOf)
		if err != nil {
			return fmt.Errorf("load primary of %s: %w", d.ShortUID(), err)
		}
		scheduled = d.EffectiveSendDate(parent)
	}
	if !d.CanDelete() || scheduled != nil {
		return apperrors.Wrap(model.ErrNotDeletable, apperrors.ErrCodeConflict,
			fmt.Sprintf("message distribution %s is scheduled or sent", d.ShortUID()))
	}

	s.dropPendingJobs(ctx, pipeline.KindMessage, id)
	if d.HasFallback() {
		s.dropPendingJobs(ctx, pipeline.KindMessage, *d.FallbackID)
	}
	if err := s.messages.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete message distribution %s: %w", d.ShortUID(), err)
	}
	s.logger.InfoContext(ctx, "message distribution deleted", "distribution", d.ShortUID())
	return nil
}

func (s *DistributionService) dropPendingJobs(ctx context.Context, kind pipeline.Kind, id int64) {
	n, err := s.jobs.DeleteByPayloadField(ctx, core.DeleteByPayloadFieldParams{
		JobType:    kind.JobType(),
		FieldName:  payloadDistributionField,
		FieldValue: strconv.FormatInt(id, 10),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to delete pending jobs", "kind", kind, "distribution_id", id, "error", err)
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "pending jobs deleted", "kind", kind, "distribution_id", id, "count", n)
	}
}

// FreezeLinkRecipients records one empty link per candidate panelist of the
// selected panels, replacing earlier ones. Opted-out panelists are excluded.
func (s *DistributionService) FreezeLinkRecipients(ctx context.Context, id int64) (int, error) {
	d, err := s.links.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if d.ImportID != "" || d.Remote.IsSet() {
		return 0, apperrors.Conflictf("recipients of %s are already imported", d.ShortUID())
	}
	profiles, err := s.profiles.Candidates(ctx, d.PanelIDs)
	if err != nil {
		return 0, fmt.Errorf("load candidates: %w", err)
	}
	uids := make([]uuid.UUID, 0, len(profiles))
	for _, p := range profiles {
		uids = append(uids, p.UID)
	}
	n, err := s.links.ReplaceLinks(ctx, id, uids)
	if err != nil {
		return 0, fmt.Errorf("freeze recipients of %s: %w", d.ShortUID(), err)
	}
	s.logger.InfoContext(ctx, "link recipients frozen", "distribution", d.ShortUID(), "recipients", n)
	return n, nil
}

// messageContext is the recipient pool of a message distribution.
type messageContext struct {
	parent  *model.LinkDistribution
	links   []*model.RecipientLink
	history []model.HistoryRecord
}

func (s *DistributionService) loadMessageContext(ctx context.Context, d *model.MessageDistribution) (messageContext, error) {
	parent, err := s.links.GetByID(ctx, d.LinkDistributionID)
	if err != nil {
		return messageContext{}, fmt.Errorf("load link distribution: %w", err)
	}
	if !parent.Remote.IsSet() {
		return messageContext{}, apperrors.Validationf("links of %s are not generated yet", parent.ShortUID())
	}
	links, err := s.links.Links(ctx, parent.ID)
	if err != nil {
		return messageContext{}, fmt.Errorf("load links: %w", err)
	}
	history, err := s.lookup.DistributionHistory(ctx, parent.Remote.ID, true)
	if err != nil {
		return messageContext{}, err
	}
	return messageContext{parent: parent, links: links, history: history}, nil
}

// CandidateStats previews who a message distribution can reach.
func (s *DistributionService) CandidateStats(ctx context.Context, id int64) (model.CandidateStats, error) {
	d, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return model.CandidateStats{}, err
	}
	mc, err := s.loadMessageContext(ctx, d)
	if err != nil {
		return model.CandidateStats{}, err
	}
	return d.CandidateStats(mc.links, mc.history), nil
}

// FreezeMessageRecipients records the current candidates of a message
// distribution as its recipients.
func (s *DistributionService) FreezeMessageRecipients(ctx context.Context, id int64) (int, error) {
	d, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	mc, err := s.loadMessageContext(ctx, d)
	if err != nil {
		return 0, err
	}
	return s.freezeMessage(ctx, d, mc)
}

func (s *DistributionService) freezeMessage(ctx context.Context, d *model.MessageDistribution, mc messageContext) (int, error) {
	if d.Remote.IsSet() || d.ImportID != "" {
		return 0, apperrors.Conflictf("recipients of %s are already imported", d.ShortUID())
	}
	candidates := d.Candidates(mc.links, mc.history)
	ids := make([]int64, len(candidates))
	for i, l := range candidates {
		ids[i] = l.ID
	}
	n, err := s.messages.SetRecipients(ctx, d.ID, ids)
	if err != nil {
		return 0, fmt.Errorf("freeze recipients of %s: %w", d.ShortUID(), err)
	}
	s.logger.InfoContext(ctx, "message recipients frozen", "distribution", d.ShortUID(), "recipients", n)
	return n, nil
}

// PrepareResult reports the recipients frozen by PrepareSend.
type PrepareResult struct {
	Recipients         int `json:"recipients"`
	FallbackRecipients int `json:"fallback_recipients"`
}

// PrepareSend checks a primary message distribution can reach someone, and
// its fallback too when it has one, freezes both recipient sets, schedules
// the send date and starts the pipelines, primary first.
func (s *DistributionService) PrepareSend(ctx context.Context, id int64, sendDate time.Time) (PrepareResult, error) {
	d, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return PrepareResult{}, err
	}
	if d.IsFallback() {
		return PrepareResult{}, apperrors.Validation("a fallback is sent through its primary distribution")
	}
	if d.Remote.IsSet() {
		return PrepareResult{}, apperrors.Conflictf("distribution %s is already sent", d.ShortUID())
	}
	mc, err := s.loadMessageContext(ctx, d)
	if err != nil {
		return PrepareResult{}, err
	}

	stats := d.CandidateStats(mc.links, mc.history)
	if stats.ContactMode == 0 {
		return PrepareResult{}, apperrors.Validationf("no panelist of %s is reachable by %s",
			d.ShortUID(), d.ContactMode.Label())
	}
	var fallback *model.MessageDistribution
	if d.HasFallback() {
		if stats.FallbackMode == 0 {
			return PrepareResult{}, apperrors.Validationf("no panelist of %s is reachable by %s only",
				d.ShortUID(), d.ContactMode.Other().Label())
		}
		fallback, err = s.messages.GetByID(ctx, *d.FallbackID)
		if err != nil {
			return PrepareResult{}, fmt.Errorf("load fallback of %s: %w", d.ShortUID(), err)
		}
	}

	var res PrepareResult
	if res.Recipients, err = s.freezeMessage(ctx, d, mc); err != nil {
		return res, err
	}
	if fallback != nil {
		if res.FallbackRecipients, err = s.freezeMessage(ctx, fallback, mc); err != nil {
			return res, err
		}
	}
	if err := s.messages.SetSendDate(ctx, id, sendDate.UTC()); err != nil {
		return res, fmt.Errorf("schedule %s: %w", d.ShortUID(), err)
	}

	if _, err := s.StartMessageDistribution(ctx, id); err != nil {
		return res, err
	}
	if fallback != nil {
		if _, err := s.StartMessageDistribution(ctx, fallback.ID); err != nil {
			return res, err
		}
	}
	return res, nil
}

// StartLinkDistribution freezes the recipients of a new link distribution
// and enqueues its pipeline, or resumes it at the step its state calls for.
func (s *DistributionService) StartLinkDistribution(ctx context.Context, id int64) (*model.Job, error) {
	d, err := s.links.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.ExpirationDate == nil {
		return nil, apperrors.Wrap(ErrExpirationRequired, apperrors.ErrCodeValidation, d.ShortUID())
	}
	state, err := s.states.State(ctx, pipeline.KindLink, id)
	if err != nil {
		return nil, fmt.Errorf("derive state of %s: %w", d.ShortUID(), err)
	}
	if state == pipeline.StateNotStarted {
		n, err := s.FreezeLinkRecipients(ctx, id)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, apperrors.Validationf("selected panels of %s have no panelist", d.ShortUID())
		}
	}
	return s.resume(ctx, pipeline.KindLink, id, state)
}

// StartMessageDistribution enqueues the pipeline of a message distribution,
// or resumes it at the step its state calls for.
func (s *DistributionService) StartMessageDistribution(ctx context.Context, id int64) (*model.Job, error) {
	state, err := s.states.State(ctx, pipeline.KindMessage, id)
	if err != nil {
		return nil, fmt.Errorf("derive state: %w", err)
	}
	return s.resume(ctx, pipeline.KindMessage, id, state)
}

// Resume enqueues the step a distribution's derived state calls for.
func (s *DistributionService) Resume(ctx context.Context, kind pipeline.Kind, id int64) (*model.Job, error) {
	state, err := s.states.State(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("derive state: %w", err)
	}
	return s.resume(ctx, kind, id, state)
}

func (s *DistributionService) resume(
	ctx context.Context,
	kind pipeline.Kind,
	id int64,
	state pipeline.State,
) (*model.Job, error) {
	def, err := pipeline.For(kind)
	if err != nil {
		return nil, err
	}
	step, ok := def.StepFor(state)
	if !ok {
		return nil, ErrPipelineComplete
	}
	if err := s.ensureIdle(ctx, kind, id); err != nil {
		return nil, err
	}
	req, err := NewStepJob(pipeline.Payload{Kind: kind, DistributionID: id, Step: step.Name}, step, s.now())
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", step.Name, err)
	}
	s.logger.InfoContext(ctx, "pipeline step enqueued",
		"kind", kind, "distribution_id", id, "state", state, "step", step.Name, "job_id", job.ID)
	return job, nil
}

// ensureIdle rejects a start while a step of the same distribution is queued or running.
func (s *DistributionService) ensureIdle(ctx context.Context, kind pipeline.Kind, id int64) error {
	jobType := kind.JobType()
	for _, status := range []model.JobStatus{model.JobStatusPending, model.JobStatusRunning} {
		jobs, err := s.jobs.List(ctx, &model.JobListOptions{
			Status:         &status,
			Type:           &jobType,
			DistributionID: &id,
			Limit:          1,
		})
		if err != nil {
			return fmt.Errorf("list %s jobs: %w", status, err)
		}
		if len(jobs) > 0 {
			return apperrors.Conflictf("a pipeline step of distribution %d is already %s", id, status)
		}
	}
	return nil
}

// Describe renders "(shortuid) description" for a distribution of kind.
func (s *DistributionService) Describe(ctx context.Context, kind pipeline.Kind, id int64) (string, error) {
	switch kind {
	case pipeline.KindLink:
		d, err := s.links.GetByID(ctx, id)
		if err != nil {
			return "", err
		}
		return d.String(), nil
	case pipeline.KindMessage:
		d, err := s.messages.GetByID(ctx, id)
		if err != nil {
			return "", err
		}
		return d.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", pipeline.ErrUnknownKind, kind)
	}
}

var _ DistributionDescriber = (*DistributionService)(nil)

// NewStepJob builds the job request running step with payload p, scheduled
// after the step's delay.
func NewStepJob(p pipeline.Payload, step pipeline.Step, now time.Time) (*model.CreateJobRequest, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode pipeline payload: %w", err)
	}
	req := &model.CreateJobRequest{
		Type:       p.Kind.JobType(),
		Payload:    raw,
		MaxRetries: step.Retry.MaxRetries,
	}
	if step.Delay > 0 {
		at := now.Add(step.Delay).UTC()
		req.ScheduledAt = &at
	}
	return req, nil
}

// SendSingleSMS sends a free-text SMS to one panelist.
func (s *DistributionService) SendSingleSMS(
	ctx context.Context,
	name string,
	profileUID uuid.UUID,
	message string,
) (string, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(message) == "" {
		return "", apperrors.Validation("name and message are required")
	}
	p, err := s.profiles.GetByUID(ctx, profileUID)
	if err != nil {
		return "", err
	}
	if !p.CanReceiveSMS(false) {
		return "", apperrors.Validationf("panelist %s cannot receive SMS", p.ESSID)
	}
	remoteID, err := s.platform.SendSingleSMS(ctx, ContactFromProfile(p), qualtrics.SingleSMS{
		Name:     name,
		SurveyID: s.sendSurveyID,
		Message:  message,
		SendDate: s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("send single SMS: %w", err)
	}
	s.logger.InfoContext(ctx, "single SMS sent", "remote_id", remoteID, "ess_id", p.ESSID)
	return remoteID, nil
}

// LinkReport is the reporting view of a link distribution.
type LinkReport struct {
	Distribution *model.LinkDistribution     `json:"distribution"`
	Counters     qualtrics.DistributionStats `json:"counters"`
	Stats        Stats                       `json:"stats"`
	Records      []MergedRecord              `json:"records"`
}

// LinkReport aggregates the counters and per-panel statuses of a link distribution.
func (s *DistributionService) LinkReport(ctx context.Context, id int64, skipCache bool) (*LinkReport, error) {
	d, err := s.links.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Remote.IsSet() {
		return nil, apperrors.Validationf("links of %s are not generated yet", d.ShortUID())
	}
	counters, err := s.lookup.DistributionStats(ctx, d.Remote.ID, d.SurveyID, false, skipCache)
	if err != nil {
		return nil, fmt.Errorf("distribution stats: %w", err)
	}
	history, err := s.lookup.DistributionHistory(ctx, d.Remote.ID, skipCache)
	if err != nil {
		return nil, err
	}
	links, err := s.links.Links(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	panelists, err := s.profiles.CountByPanel(ctx, d.PanelIDs)
	if err != nil {
		return nil, fmt.Errorf("count panelists: %w", err)
	}
	merged := MergeLinksAndHistory(links, history)
	return &LinkReport{
		Distribution: d,
		Counters:     LinkCounters(counters),
		Stats:        LinkStats(merged, panelists),
		Records:      merged,
	}, nil
}

// MessageReport is the reporting view of a message distribution. Stats and
// Records are empty for SMS, which keeps no per-recipient history.
type MessageReport struct {
	Distribution *model.MessageDistribution  `json:"distribution"`
	Counters     qualtrics.DistributionStats `json:"counters"`
	Stats        *Stats                      `json:"stats,omitempty"`
	Records      []MergedRecord              `json:"records,omitempty"`
}

// MessageReport aggregates the counters and, for email, the per-panel
// delivery statuses of a sent message distribution.
func (s *DistributionService) MessageReport(ctx context.Context, id int64, skipCache bool) (*MessageReport, error) {
	d, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Remote.IsSet() {
		return nil, apperrors.Validationf("distribution %s is not sent yet", d.ShortUID())
	}
	counters, err := s.lookup.DistributionStats(ctx, d.Remote.ID, s.sendSurveyID, d.IsSMS(), skipCache)
	if err != nil {
		return nil, fmt.Errorf("distribution stats: %w", err)
	}
	report := &MessageReport{Distribution: d, Counters: counters}
	if !d.HasHistory() {
		return report, nil
	}

	history, err := s.lookup.DistributionHistory(ctx, d.Remote.ID, skipCache)
	if err != nil {
		return nil, err
	}
	recipients, err := s.messages.Recipients(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	parent, err := s.links.GetByID(ctx, d.LinkDistributionID)
	if err != nil {
		return nil, fmt.Errorf("load link distribution: %w", err)
	}
	panelists, err := s.profiles.CountByPanel(ctx, parent.PanelIDs)
	if err != nil {
		return nil, fmt.Errorf("count panelists: %w", err)
	}
	report.Records = MergeLinksAndHistory(recipients, history)
	stats := MessageStats(report.Records, panelists)
	report.Stats = &stats
	return report, nil
}
