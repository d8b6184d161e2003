package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	apperrors "github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/errors"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type distributionFixture struct {
	links    *LinkDistributionRepo
	messages *MessageDistributionRepo
	profiles *ProfileRepo
	panelFR  int64
	panelDE  int64
	uids     []uuid.UUID
}

func seedDistributionFixture(t *testing.T, db *sql.DB) distributionFixture {
	t.Helper()
	f := distributionFixture{
		links:    NewLinkDistributionRepo(db),
		messages: NewMessageDistributionRepo(db),
		profiles: NewProfileRepo(db),
		panelFR:  testutil.SeedPanel(t, db, "France"),
		panelDE:  testutil.SeedPanel(t, db, "Germany"),
	}
	f.uids = []uuid.UUID{
		testutil.SeedProfile(t, db, f.panelFR, testutil.ProfileFixture{FirstName: "Ana", Email: "ana@example.org"}),
		testutil.SeedProfile(t, db, f.panelFR, testutil.ProfileFixture{FirstName: "Bo", Phone: "+33600000000"}),
		testutil.SeedProfile(t, db, f.panelDE, testutil.ProfileFixture{FirstName: "Cy", Email: "cy@example.org"}),
	}
	testutil.SeedProfile(t, db, f.panelDE, testutil.ProfileFixture{FirstName: "Out", Email: "out@example.org", IsOptOut: true})
	return f
}

func TestProfileRepo(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		f := seedDistributionFixture(t, db)

		candidates, err := f.profiles.Candidates(ctx, []int64{f.panelFR, f.panelDE})
		require.NoError(t, err)
		require.Len(t, candidates, 3, "opted-out panelists are excluded")
		assert.Equal(t, "France", candidates[0].Panel.Name)
		assert.Equal(t, "ana@example.org", candidates[0].Email)

		counts, err := f.profiles.CountByPanel(ctx, []int64{f.panelFR, f.panelDE})
		require.NoError(t, err)
		assert.Equal(t, map[int64]int{f.panelFR: 2, f.panelDE: 2}, counts)

		p, err := f.profiles.GetByUID(ctx, f.uids[1])
		require.NoError(t, err)
		assert.Equal(t, "+33600000000", p.Phone)

		_, err = f.profiles.GetByUID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrProfileNotFound)
	})
}

func TestLinkDistributionRepo(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		f := seedDistributionFixture(t, db)

		d, err := f.links.Create(ctx, &model.CreateLinkDistributionRequest{
			Description: " Wave 3 ",
			SurveyID:    "SV_1",
			PanelIDs:    []int64{f.panelDE, f.panelFR},
		})
		require.NoError(t, err)
		assert.Equal(t, "Wave 3", d.Description)
		assert.ElementsMatch(t, []int64{f.panelFR, f.panelDE}, d.PanelIDs)
		assert.NotEqual(t, uuid.Nil, d.UID)
		assert.False(t, d.Remote.IsSet())

		t.Run("refs are written once", func(t *testing.T) {
			list, other := "CG_1", "CG_2"
			require.NoError(t, f.links.UpdateRefs(ctx, d.ID, core.RefUpdate{ListID: &list}))
			require.NoError(t, f.links.UpdateRefs(ctx, d.ID, core.RefUpdate{ListID: &other}))

			created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
			require.NoError(t, f.links.UpdateRefs(ctx, d.ID, core.RefUpdate{
				Remote: &model.RemoteRef{ID: "EMD_1", CreatedAt: &created},
			}))
			require.NoError(t, f.links.UpdateRefs(ctx, d.ID, core.RefUpdate{
				Remote: &model.RemoteRef{ID: "EMD_2"},
			}))

			got, err := f.links.GetByID(ctx, d.ID)
			require.NoError(t, err)
			assert.Equal(t, "CG_1", got.ListID)
			assert.Equal(t, "EMD_1", got.Remote.ID)
			require.NotNil(t, got.Remote.CreatedAt)
			assert.True(t, created.Equal(*got.Remote.CreatedAt))
		})

		t.Run("links", func(t *testing.T) {
			n, err := f.links.ReplaceLinks(ctx, d.ID, f.uids)
			require.NoError(t, err)
			assert.Equal(t, 3, n)
			n, err = f.links.ReplaceLinks(ctx, d.ID, f.uids[:2])
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			links, err := f.links.Links(ctx, d.ID)
			require.NoError(t, err)
			require.Len(t, links, 2)
			require.NotNil(t, links[0].Profile)
			assert.Equal(t, f.uids[0], links[0].Profile.UID)
			assert.False(t, links[0].Complete())

			links[0].ContactID, links[0].URL = "CID_1", "https://survey.example/1"
			updated, err := f.links.UpdateLinks(ctx, links[:1])
			require.NoError(t, err)
			assert.Equal(t, 1, updated)

			links, err = f.links.Links(ctx, d.ID)
			require.NoError(t, err)
			assert.True(t, links[0].Complete())
			assert.False(t, links[1].Complete())
		})

		t.Run("list and delete", func(t *testing.T) {
			survey := "SV_1"
			all, err := f.links.List(ctx, core.LinkDistributionListOptions{SurveyID: &survey})
			require.NoError(t, err)
			require.Len(t, all, 1)

			require.NoError(t, f.links.Delete(ctx, d.ID))
			_, err = f.links.GetByID(ctx, d.ID)
			assert.ErrorIs(t, err, ErrDistributionNotFound)
			assert.ErrorIs(t, f.links.Delete(ctx, d.ID), ErrDistributionNotFound)
		})
	})
}

func TestMessageDistributionRepo(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		f := seedDistributionFixture(t, db)

		link, err := f.links.Create(ctx, &model.CreateLinkDistributionRequest{
			Description: "Wave 3", SurveyID: "SV_1", PanelIDs: []int64{f.panelFR},
		})
		require.NoError(t, err)
		_, err = f.links.ReplaceLinks(ctx, link.ID, f.uids[:2])
		require.NoError(t, err)
		links, err := f.links.Links(ctx, link.ID)
		require.NoError(t, err)

		primary, err := f.messages.Create(ctx, &model.CreateMessageDistributionRequest{
			Description:        "Invitation",
			LinkDistributionID: link.ID,
			ContactMode:        model.ContactModeEmail,
			Target:             model.TargetAll,
			MessageID:          "MS_1",
			SubjectID:          "MS_2",
		})
		require.NoError(t, err)
		assert.False(t, primary.HasFallback())

		fallback, err := f.messages.Create(ctx, &model.CreateMessageDistributionRequest{
			Description:        "Invitation",
			LinkDistributionID: link.ID,
			ContactMode:        model.ContactModeSMS,
			Target:             model.TargetAll,
			MessageID:          "MS_3",
			FallbackOf:         &primary.ID,
		})
		require.NoError(t, err)
		assert.True(t, fallback.IsFallback())

		t.Run("a primary has one fallback", func(t *testing.T) {
			_, err := f.messages.Create(ctx, &model.CreateMessageDistributionRequest{
				Description:        "Again",
				LinkDistributionID: link.ID,
				ContactMode:        model.ContactModeSMS,
				Target:             model.TargetAll,
				MessageID:          "MS_3",
				FallbackOf:         &primary.ID,
			})
			assert.True(t, apperrors.IsConflict(err))

			got, err := f.messages.GetByID(ctx, primary.ID)
			require.NoError(t, err)
			require.NotNil(t, got.FallbackID)
			assert.Equal(t, fallback.ID, *got.FallbackID)
		})

		t.Run("recipients", func(t *testing.T) {
			n, err := f.messages.SetRecipients(ctx, primary.ID, []int64{links[0].ID})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			recipients, err := f.messages.Recipients(ctx, primary.ID)
			require.NoError(t, err)
			require.Len(t, recipients, 1)
			assert.Equal(t, "Ana", recipients[0].Profile.FirstName)
		})

		t.Run("send date and refs", func(t *testing.T) {
			at := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
			require.NoError(t, f.messages.SetSendDate(ctx, primary.ID, at))
			batch := "BT_1"
			require.NoError(t, f.messages.UpdateRefs(ctx, primary.ID, core.RefUpdate{BatchID: &batch}))

			got, err := f.messages.GetByID(ctx, primary.ID)
			require.NoError(t, err)
			assert.Equal(t, "BT_1", got.BatchID)
			require.NotNil(t, got.SendDate)
			assert.True(t, at.Equal(*got.SendDate))
		})

		t.Run("deleting the primary removes the fallback", func(t *testing.T) {
			require.NoError(t, f.messages.Delete(ctx, primary.ID))
			_, err := f.messages.GetByID(ctx, fallback.ID)
			assert.ErrorIs(t, err, ErrDistributionNotFound)

			left, err := f.messages.ListByLinkDistribution(ctx, link.ID)
			require.NoError(t, err)
			assert.Empty(t, left)
		})
	})
}
