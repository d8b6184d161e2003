package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/pipeline"
	apperrors "github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/errors"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/mocks"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/qualtrics"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type distributionFixture struct {
	*orchestratorFixture
	svc      *DistributionService
	jobs     *mocks.MockJobRepository
	profiles *fakeProfileRepo
}

func newDistributionFixture(t *testing.T) *distributionFixture {
	t.Helper()
	of := newOrchestratorFixture(t)
	jobs := mocks.NewMockJobRepository(gomock.NewController(t))
	profiles := &fakeProfileRepo{}
	lookup, err := NewLookupService(LookupServiceOptions{Platform: of.platform})
	require.NoError(t, err)

	svc, err := NewDistributionService(DistributionServiceOptions{
		Links:        of.links,
		Messages:     of.messages,
		Profiles:     profiles,
		Jobs:         jobs,
		States:       of.orch,
		Lookup:       lookup,
		Platform:     of.platform,
		SendSurveyID: "SV_SEND",
		Now:          func() time.Time { return orchestratorNow },
	})
	require.NoError(t, err)
	return &distributionFixture{orchestratorFixture: of, svc: svc, jobs: jobs, profiles: profiles}
}

// expectIdle reports no queued or running job for the next start.
func (f *distributionFixture) expectIdle() {
	f.jobs.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, nil).Times(2)
}

// expectEnqueue captures the payload of the next created job.
func (f *distributionFixture) expectEnqueue(t *testing.T, got *[]pipeline.Payload) {
	f.jobs.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			var p pipeline.Payload
			require.NoError(t, json.Unmarshal(req.Payload, &p))
			*got = append(*got, p)
			return &model.Job{ID: uuid.NewString(), Type: req.Type, Payload: req.Payload}, nil
		})
}

func phoneOnly(l *model.RecipientLink) *model.RecipientLink {
	l.Profile.Email = ""
	l.Profile.Phone = "+33600000000"
	return l
}

func withPhone(l *model.RecipientLink) *model.RecipientLink {
	l.Profile.Phone = "+33611111111"
	return l
}

func TestCreateMessageDistributionRejectsFallbackOf(t *testing.T) {
	f := newDistributionFixture(t)
	parent := f.linkDistribution(nil)
	primary := int64(1)

	_, err := f.svc.CreateMessageDistribution(context.Background(), &model.CreateMessageDistributionRequest{
		Description:        "Reminder",
		LinkDistributionID: parent.ID,
		ContactMode:        model.ContactModeSMS,
		Target:             model.TargetAll,
		MessageID:          "MS_1",
		FallbackOf:         &primary,
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestCreateLinkDistributionValidates(t *testing.T) {
	f := newDistributionFixture(t)
	past := orchestratorNow.Add(-time.Hour)

	_, err := f.svc.CreateLinkDistribution(context.Background(), &model.CreateLinkDistributionRequest{
		Description: "Wave 1", SurveyID: "SV_1", PanelIDs: []int64{1}, ExpirationDate: &past,
	})
	assert.True(t, apperrors.IsValidation(err))

	d, err := f.svc.CreateLinkDistribution(context.Background(), &model.CreateLinkDistributionRequest{
		Description: "Wave 1", SurveyID: "SV_1", PanelIDs: []int64{1},
	})
	require.NoError(t, err)
	assert.Len(t, d.ShortUID(), 8)
}

func TestAddFallback(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := context.Background()
	parent := f.linkDistribution(nil)
	primary := f.messageDistribution(parent.ID, func(d *model.MessageDistribution) {
		d.Target = model.TargetNotFinished
	})

	fallback, err := f.svc.AddFallback(ctx, primary.ID, "MS_SMS", "MS_SUBJ")
	require.NoError(t, err)
	assert.Equal(t, model.ContactModeSMS, fallback.ContactMode)
	assert.Equal(t, model.TargetNotFinished, fallback.Target)
	assert.Equal(t, parent.ID, fallback.LinkDistributionID)
	assert.Equal(t, primary.Description, fallback.Description)
	assert.Empty(t, fallback.SubjectID)
	require.NotNil(t, fallback.FallbackOf)
	assert.Equal(t, primary.ID, *fallback.FallbackOf)

	_, err = f.svc.AddFallback(ctx, primary.ID, "MS_SMS", "")
	assert.ErrorIs(t, err, model.ErrFallbackNotAllowed, "a primary has at most one fallback")

	_, err = f.svc.AddFallback(ctx, fallback.ID, "MS_1", "MS_SUBJ")
	assert.ErrorIs(t, err, model.ErrFallbackNotAllowed, "a fallback has no fallback")
}

func TestUpdateMessageDescriptionPropagatesToFallback(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := context.Background()
	parent := f.linkDistribution(nil)
	primary := f.messageDistribution(parent.ID, nil)
	fallback, err := f.svc.AddFallback(ctx, primary.ID, "MS_SMS", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateMessageDescription(ctx, primary.ID, "  Second wave  "))
	assert.Equal(t, "Second wave", f.messages.get(primary.ID).Description)
	assert.Equal(t, "Second wave", f.messages.get(fallback.ID).Description)

	err = f.svc.UpdateMessageDescription(ctx, fallback.ID, "Other")
	assert.True(t, apperrors.IsValidation(err))

	err = f.svc.UpdateMessageDescription(ctx, primary.ID, " ")
	assert.True(t, apperrors.IsValidation(err))
}

func TestDeleteLinkDistribution(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := context.Background()

	withExpiration := f.linkDistribution(nil)
	err := f.svc.DeleteLinkDistribution(ctx, withExpiration.ID)
	assert.ErrorIs(t, err, model.ErrNotDeletable)
	assert.True(t, apperrors.IsConflict(err))

	draft := f.linkDistribution(func(d *model.LinkDistribution) { d.ExpirationDate = nil })
	msg := f.messageDistribution(draft.ID, nil)
	f.jobs.EXPECT().DeleteByPayloadField(gomock.Any(), core.DeleteByPayloadFieldParams{
		JobType: model.JobTypeMessagePipeline, FieldName: "distribution_id", FieldValue: "101",
	}).Return(0, nil)
	f.jobs.EXPECT().DeleteByPayloadField(gomock.Any(), core.DeleteByPayloadFieldParams{
		JobType: model.JobTypeLinkPipeline, FieldName: "distribution_id", FieldValue: "2",
	}).Return(1, nil)

	require.Equal(t, int64(101), msg.ID)
	require.NoError(t, f.svc.DeleteLinkDistribution(ctx, draft.ID))
	assert.Nil(t, f.links.get(draft.ID))
}

func TestDeleteMessageDistributionGuards(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := context.Background()
	parent := f.linkDistribution(nil)
	at := orchestratorNow.Add(time.Hour)

	sent := f.messageDistribution(parent.ID, func(d *model.MessageDistribution) { d.Remote.ID = "EMD_1" })
	assert.ErrorIs(t, f.svc.DeleteMessageDistribution(ctx, sent.ID), model.ErrNotDeletable)

	scheduled := f.messageDistribution(parent.ID, func(d *model.MessageDistribution) { d.SendDate = &at })
	assert.ErrorIs(t, f.svc.DeleteMessageDistribution(ctx, scheduled.ID), model.ErrNotDeletable)

	scheduledFallback, err := f.svc.AddFallback(ctx, scheduled.ID, "MS_SMS", "")
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.DeleteMessageDistribution(ctx, scheduledFallback.ID), model.ErrNotDeletable,
		"a fallback is scheduled with its primary")
}

func TestDeleteMessageDistributionWithFallback(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := context.Background()
	parent := f.linkDistribution(nil)
	primary := f.messageDistribution(parent.ID, nil)
	fallback, err := f.svc.AddFallback(ctx, primary.ID, "MS_SMS", "")
	require.NoError(t, err)

	f.jobs.EXPECT().DeleteByPayloadField(gomock.Any(), gomock.Any()).Return(0, nil).Times(2)
	require.NoError(t, f.svc.DeleteMessageDistribution(ctx, primary.ID))
	assert.Nil(t, f.messages.get(primary.ID))
	assert.Nil(t, f.messages.get(fallback.ID))
}

func TestFreezeLinkRecipients(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := context.Background()
	fr1, fr2, optedOut, de := testLink(1, "", panelFR), testLink(2, "", panelFR), testLink(3, "", panelFR),
		testLink(4, "", panelDE)
	optedOut.Profile.IsOptOut = true
	f.profiles.profiles = []*model.Profile{fr1.Profile, fr2.Profile, optedOut.Profile, de.Profile}
	d := f.linkDistribution(nil)

	n, err := f.svc.FreezeLinkRecipients(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	links, err := f.links.Links(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, fr1.ProfileID, links[0].ProfileID)
	assert.False(t, links[0].Complete())

	require.NoError(t, f.links.UpdateRefs(ctx, d.ID, core.RefUpdate{ImportID: ptrTo("PGR_1")}))
	_, err = f.svc.FreezeLinkRecipients(ctx, d.ID)
	assert.True(t, apperrors.IsConflict(err), "recipients are fixed once imported")
}

func ptrTo[T any](v T) *T { return &v }

func TestStartLinkDistributionFreezesAndEnqueues(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := context.Background()
	l := testLink(1, "", panelFR)
	f.profiles.profiles = []*model.Profile{l.Profile}
	d := f.linkDistribution(nil)

	var enqueued []pipeline.Payload
	f.expectIdle()
	f.expectEnqueue(t, &enqueued)

	job, err := f.svc.StartLinkDistribution(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, model.JobTypeLinkPipeline, job.Type)
	assert.Equal(t, []pipeline.Payload{
		{Kind: pipeline.KindLink, DistributionID: d.ID, Step: pipeline.StepEnsureMailingList},
	}, enqueued)

	links, err := f.links.Links(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestStartLinkDistributionRequiresExpiration(t *testing.T) {
	f := newDistributionFixture(t)
	d := f.linkDistribution(func(d *model.LinkDistribution) { d.ExpirationDate = nil })

	_, err := f.svc.StartLinkDistribution(context.Background(), d.ID)
	assert.ErrorIs(t, err, ErrExpirationRequired)
}

func TestResumeAtWaitStepIsDelayed(t *testing.T) {
	f := newDistributionFixture(t)
	d := f.linkDistribution(func(d *model.LinkDistribution) {
		d.ListID = "CG_1"
		d.ImportID = "PGR_1"
	})

	f.expectIdle()
	f.jobs.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			assert.JSONEq(t,
				`{"kind":"link_distribution","distribution_id":`+itoa(d.ID)+`,"step":"wait_for_import"}`,
				string(req.Payload))
			require.NotNil(t, req.ScheduledAt)
			assert.Equal(t, orchestratorNow.Add(5*time.Second), *req.ScheduledAt)
			assert.Equal(t, 10, req.MaxRetries)
			return &model.Job{ID: "job-1", Type: req.Type}, nil
		})

	_, err := f.svc.Resume(context.Background(), pipeline.KindLink, d.ID)
	require.NoError(t, err)
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestResumeFinishedPipeline(t *testing.T) {
	f := newDistributionFixture(t)
	parent := f.linkDistribution(nil)
	m := f.messageDistribution(parent.ID, func(d *model.MessageDistribution) { d.Remote.ID = "EMD_1" })

	_, err := f.svc.StartMessageDistribution(context.Background(), m.ID)
	assert.ErrorIs(t, err, ErrPipelineComplete)
}

func TestResumeRejectsBusyDistribution(t *testing.T) {
	f := newDistributionFixture(t)
	parent := f.linkDistribution(nil)
	m := f.messageDistribution(parent.ID, nil)

	f.jobs.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, opts *model.JobListOptions) ([]*model.Job, error) {
			require.NotNil(t, opts.DistributionID)
			assert.Equal(t, m.ID, *opts.DistributionID)
			assert.Equal(t, model.JobTypeMessagePipeline, *opts.Type)
			return []*model.Job{{ID: "job-1"}}, nil
		})

	_, err := f.svc.StartMessageDistribution(context.Background(), m.ID)
	assert.True(t, apperrors.IsConflict(err))
}

// sendFixture holds a generated link distribution whose three recipients
// have no response yet: one reachable by email only, one by SMS only, one by both.
func sendFixture(t *testing.T, f *distributionFixture) (*model.LinkDistribution, []*model.RecipientLink) {
	t.Helper()
	parent := f.linkDistribution(func(d *model.LinkDistribution) {
		d.ListID = "CG_1"
		d.Remote = model.RemoteRef{ID: "EMD_LINKS"}
	})
	links := []*model.RecipientLink{
		testLink(0, "CID_1", panelFR),
		phoneOnly(testLink(0, "CID_2", panelFR)),
		withPhone(testLink(0, "CID_3", panelDE)),
	}
	f.links.addLinks(parent.ID, links...)
	f.platform.EXPECT().DistributionHistory(gomock.Any(), "EMD_LINKS").Return([]qualtrics.HistoryEntry{
		{ContactID: "CID_1", Status: model.HistoryPending},
		{ContactID: "CID_2", Status: model.HistoryPending},
		{ContactID: "CID_3", Status: model.HistorySurveyStarted},
	}, nil)
	return parent, links
}

func TestPrepareSendFreezesAndStartsPrimaryThenFallback(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := context.Background()
	parent, links := sendFixture(t, f)
	primary := f.messageDistribution(parent.ID, nil)
	fallback, err := f.svc.AddFallback(ctx, primary.ID, "MS_SMS", "")
	require.NoError(t, err)

	var enqueued []pipeline.Payload
	f.jobs.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, nil).Times(4)
	f.expectEnqueue(t, &enqueued)
	f.expectEnqueue(t, &enqueued)

	sendAt := orchestratorNow.Add(24 * time.Hour)
	res, err := f.svc.PrepareSend(ctx, primary.ID, sendAt)
	require.NoError(t, err)
	assert.Equal(t, PrepareResult{Recipients: 2, FallbackRecipients: 1}, res)

	assert.Equal(t, []int64{links[0].ID, links[2].ID}, f.messages.recipientIDs(primary.ID))
	assert.Equal(t, []int64{links[1].ID}, f.messages.recipientIDs(fallback.ID))
	require.NotNil(t, f.messages.get(primary.ID).SendDate)
	assert.Equal(t, sendAt, *f.messages.get(primary.ID).SendDate)

	assert.Equal(t, []pipeline.Payload{
		{Kind: pipeline.KindMessage, DistributionID: primary.ID, Step: pipeline.StepEnsureTransactionBatch},
		{Kind: pipeline.KindMessage, DistributionID: fallback.ID, Step: pipeline.StepEnsureTransactionBatch},
	}, enqueued)
}

func TestPrepareSendRequiresReachableFallbackRecipients(t *testing.T) {
	f := newDistributionFixture(t)
	ctx := context.Background()
	parent, _ := sendFixture(t, f)
	// Every recipient with a phone also has an email: nobody for the SMS fallback.
	primary := f.messageDistribution(parent.ID, func(d *model.MessageDistribution) {
		d.Target = model.TargetNotFinished
	})
	f.links.mu.Lock()
	for _, l := range f.links.links[parent.ID] {
		f.links.profiles[l.ProfileID].Email = "someone@example.org"
	}
	f.links.mu.Unlock()
	_, err := f.svc.AddFallback(ctx, primary.ID, "MS_SMS", "")
	require.NoError(t, err)

	_, err = f.svc.PrepareSend(ctx, primary.ID, orchestratorNow)
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, f.messages.recipientIDs(primary.ID), "nothing is frozen on failure")
}

func TestPrepareSendRejectsFallback(t *testing.T) {
	f := newDistributionFixture(t)
	parent := f.linkDistribution(nil)
	primary := f.messageDistribution(parent.ID, nil)
	fallback, err := f.svc.AddFallback(context.Background(), primary.ID, "MS_SMS", "")
	require.NoError(t, err)

	_, err = f.svc.PrepareSend(context.Background(), fallback.ID, orchestratorNow)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSendSingleSMS(t *testing.T) {
	f := newDistributionFixture(t)
	l := phoneOnly(testLink(7, "", panelFR))
	l.Profile.Country = "FR"
	f.profiles.profiles = []*model.Profile{l.Profile}

	f.platform.EXPECT().SendSingleSMS(gomock.Any(), gomock.Any(), qualtrics.SingleSMS{
		Name:     "reminder",
		SurveyID: "SV_SEND",
		Message:  "Please answer",
		SendDate: orchestratorNow,
	}).DoAndReturn(func(_ context.Context, c qualtrics.Contact, _ qualtrics.SingleSMS) (string, error) {
		assert.Equal(t, "33600000000", c.Phone)
		assert.Equal(t, l.Profile.ExtRef(), c.ExtRef)
		assert.Equal(t, "FR"+l.Profile.ESSID, c.EmbeddedData["id"])
		return "SMSD_1", nil
	})

	id, err := f.svc.SendSingleSMS(context.Background(), "reminder", l.ProfileID, "Please answer")
	require.NoError(t, err)
	assert.Equal(t, "SMSD_1", id)

	email := testLink(8, "", panelFR)
	f.profiles.profiles = append(f.profiles.profiles, email.Profile)
	_, err = f.svc.SendSingleSMS(context.Background(), "reminder", email.ProfileID, "Please answer")
	assert.True(t, apperrors.IsValidation(err))
}

func TestLinkReport(t *testing.T) {
	f := newDistributionFixture(t)
	parent, _ := sendFixture(t, f)
	require.NoError(t, f.links.mutate(parent.ID, func(d *model.LinkDistribution) {
		d.PanelIDs = []int64{panelFR.ID, panelDE.ID}
	}))
	f.platform.EXPECT().EmailStats(gomock.Any(), "EMD_LINKS", "SV_1").
		Return(qualtrics.DistributionStats{"started": 4, "finished": 1}, nil)

	report, err := f.svc.LinkReport(context.Background(), parent.ID, false)
	require.NoError(t, err)
	assert.Equal(t, float64(3), report.Counters["in_progress"])
	require.Len(t, report.Records, 3)
	assert.Equal(t, 2, report.Stats.Panels["France"].Counts["not_started"])
	assert.Equal(t, 1, report.Stats.Panels["Germany"].Counts["started"])
	require.NotNil(t, report.Stats.Total)
	assert.Equal(t, 3, report.Stats.Total.Total)
}

func TestMessageReportSMSHasCountersOnly(t *testing.T) {
	f := newDistributionFixture(t)
	parent := f.linkDistribution(nil)
	m := f.messageDistribution(parent.ID, func(d *model.MessageDistribution) {
		d.ContactMode = model.ContactModeSMS
		d.Remote.ID = "SMSD_1"
	})
	f.platform.EXPECT().SMSStats(gomock.Any(), "SMSD_1", "SV_SEND").
		Return(qualtrics.DistributionStats{"sent": 2}, nil)

	report, err := f.svc.MessageReport(context.Background(), m.ID, false)
	require.NoError(t, err)
	assert.Equal(t, float64(2), report.Counters["sent"])
	assert.Nil(t, report.Stats)
	assert.Empty(t, report.Records)
}

func TestMessageReportUnsent(t *testing.T) {
	f := newDistributionFixture(t)
	parent := f.linkDistribution(nil)
	m := f.messageDistribution(parent.ID, nil)

	_, err := f.svc.MessageReport(context.Background(), m.ID, false)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
}
