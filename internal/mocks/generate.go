// Package mocks provides gomock doubles for the ports declared in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	platform := mocks.NewMockSurveyPlatform(ctrl)
//	platform.EXPECT().CreateMailingList(gomock.Any(), "1a2b3c4d").Return("CG_1", nil)
package mocks

// MockJobRepository: Create, GetByID, ReserveNext, WaitForNotification, Heartbeat,
// Complete, Fail, Retry, Stats, List, Delete, DeleteByPayloadField
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core JobRepository

// MockSurveyPlatform: the remote platform operations of the distribution pipelines
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=survey_platform_mock.go github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core SurveyPlatform
