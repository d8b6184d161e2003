package qualtrics

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailDistributionSpec(t *testing.T) {
	d := EmailDistribution{
		BatchID:        "BT_1",
		SurveyID:       "SV_1",
		SendDate:       time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		LibraryID:      "UR_1",
		MessageID:      "MS_1",
		SubjectID:      "MS_SUBJ",
		FromEmail:      "panel@example.org",
		FromName:       "ESS Panel",
		ReplyTo:        "reply@example.org",
		LinkType:       LinkAnonymous,
		LinkExpiration: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	spec, err := d.Spec()
	require.NoError(t, err)

	encoded, err := json.Marshal(spec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"header": {
			"fromEmail": "panel@example.org",
			"fromName": "ESS Panel",
			"replyToEmail": "reply@example.org",
			"subject": "MS_SUBJ"
		},
		"message": {"libraryId": "UR_1", "messageId": "MS_1"},
		"recipients": {"transactionBatchId": "BT_1"},
		"surveyLink": {
			"surveyId": "SV_1",
			"expirationDate": "2024-06-01T00:00:00Z",
			"type": "Anonymous"
		},
		"sendDate": "2024-05-01T08:00:00Z"
	}`, string(encoded))
}

func TestEmailDistributionRejectsUnknownLinkType(t *testing.T) {
	_, err := EmailDistribution{LinkType: "Broadcast"}.Spec()
	assert.ErrorIs(t, err, ErrInvalidLinkType)
}

func TestEmailDistributionDefaults(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	d := EmailDistribution{BatchID: "BT_1"}.WithDefaults(now, "UR_9")

	assert.Equal(t, now, d.SendDate)
	assert.Equal(t, now.AddDate(0, 0, 30), d.LinkExpiration)
	assert.Equal(t, "UR_9", d.LibraryID)
	assert.Equal(t, DefaultFromEmail, d.FromEmail)
	assert.Equal(t, DefaultFromName, d.FromName)
	assert.Equal(t, DefaultReplyTo, d.ReplyTo)
	assert.Equal(t, LinkIndividual, d.LinkType)
}

func TestSendPostsEmailDistribution(t *testing.T) {
	fake := newFakeQualtrics(t)
	fake.on(http.MethodPost, "/API/v3/distributions", http.StatusOK, `{"result":{"id":"EMD_1"}}`)

	id, err := fake.client(t).Distributions().Send(context.Background(), EmailDistribution{
		BatchID: "BT_1", SurveyID: "SV_1", MessageID: "MS_1", SubjectID: "MS_2",
	})
	require.NoError(t, err)
	assert.Equal(t, "EMD_1", id)

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Contains(t, string(reqs[0].Body), `"sendDate":"2024-01-01T12:00:00Z"`)
	assert.Contains(t, string(reqs[0].Body), `"libraryId":"UR_1"`)
}

func TestGenerateLinksRequiresExactlyOneTarget(t *testing.T) {
	fake := newFakeQualtrics(t)
	dists := fake.client(t).Distributions()

	_, err := dists.GenerateLinks(context.Background(), LinkRequest{SurveyID: "SV_1"})
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = dists.GenerateLinks(context.Background(), LinkRequest{SurveyID: "SV_1", ListID: "CG_1", BatchID: "BT_1"})
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.Empty(t, fake.recorded())
}

func TestGenerateLinksBody(t *testing.T) {
	fake := newFakeQualtrics(t)
	fake.on(http.MethodPost, "/API/v3/distributions", http.StatusOK, `{"result":{"id":"EMD_L"}}`)

	id, err := fake.client(t).Distributions().GenerateLinks(context.Background(), LinkRequest{
		SurveyID:       "SV_1",
		ExpirationDate: time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC),
		Description:    "wave 3",
		ListID:         "CG_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "EMD_L", id)

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{
		"surveyId": "SV_1",
		"linkType": "Individual",
		"description": "wave 3",
		"action": "CreateDistribution",
		"expirationDate": "2024-12-31 23:00:00",
		"mailingListId": "CG_1"
	}`, string(reqs[0].Body))
}

func TestDistributionLinksAndHistory(t *testing.T) {
	fake := newFakeQualtrics(t)
	fake.on(http.MethodGet, "/API/v3/distributions/EMD_1/links", http.StatusOK,
		`{"result":{"elements":[{"contactId":"CID_1","link":"https://s/1","externalDataReference":"abc"}],"nextPage":null}}`)
	fake.on(http.MethodGet, "/API/v3/distributions/EMD_1/history", http.StatusOK,
		`{"result":{"elements":[{"contactId":"CID_1","status":"SurveyFinished"}],"nextPage":null}}`)

	dists := fake.client(t).Distributions()
	links, err := dists.Links(context.Background(), "EMD_1", "SV_1")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "abc", links[0].ExternalDataReference)

	history, err := dists.History(context.Background(), "EMD_1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "SurveyFinished", history[0].Status)

	reqs := fake.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, "surveyId=SV_1", reqs[0].Query)
}

func TestSMSSpecs(t *testing.T) {
	send := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	batch, err := json.Marshal(SMSDistribution{
		Name: "ab12cd34", SurveyID: "SV_1", BatchID: "BT_1", LibraryID: "UR_1", MessageID: "MS_1", SendDate: send,
	}.Spec())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "ab12cd34",
		"surveyId": "SV_1",
		"method": "Invite",
		"message": {"messageId": "MS_1", "libraryId": "UR_1"},
		"sendDate": "2024-05-01T08:00:00Z",
		"recipients": {"transactionBatchId": "BT_1"}
	}`, string(batch))

	single, err := json.Marshal(SingleSMS{
		Name: "one-off", SurveyID: "SV_1", Message: "Hello", MailingListID: "CG_9", SendDate: send,
	}.Spec())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "one-off",
		"surveyId": "SV_1",
		"method": "Invite",
		"message": {"messageText": "Hello"},
		"sendDate": "2024-05-01T08:00:00Z",
		"recipients": {"mailingListId": "CG_9"}
	}`, string(single))
}

func TestMessagesCategoryFilter(t *testing.T) {
	fake := newFakeQualtrics(t)
	fake.on(http.MethodGet, "/API/v3/libraries/UR_1/messages", http.StatusOK,
		`{"result":{"elements":[{"id":"MS_1","description":"Invite","category":"smsInvite"}],"nextPage":null}}`)

	messages, err := fake.client(t).Messages()
	require.NoError(t, err)

	_, err = messages.List(context.Background(), "postcard", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidCategory)

	got, err := messages.List(context.Background(), CategorySMSInvite, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []Message{{ID: "MS_1", Description: "Invite", Category: "smsInvite"}}, got)

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "category=smsInvite&offset=0", reqs[0].Query)
}

func TestTransactionBatchCreate(t *testing.T) {
	fake := newFakeQualtrics(t)
	fake.on(http.MethodPost, "/API/v3/directories/POOL_1/transactionbatches", http.StatusOK, `{"result":{"id":"BT_7"}}`)

	batches, err := fake.client(t).TransactionBatches()
	require.NoError(t, err)
	id, err := batches.Create(context.Background(), nil, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "BT_7", id)

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"transactionIds":[],"createdDate":"2024-01-01T12:00:00Z"}`, string(reqs[0].Body))
}
