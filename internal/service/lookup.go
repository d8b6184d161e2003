package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/qualtrics"
	"golang.org/x/sync/singleflight"
)

const defaultLookupTTL = 300 * time.Second

// Message categories offered per use.
var (
	EmailMessageCategories = []string{"invite", "reminder", "thankYou", "general"}
	EmailSubjectCategories = []string{qualtrics.CategoryEmailSubject}
	SMSMessageCategories   = []string{qualtrics.CategorySMSInvite}
)

// Cache outcomes as logged.
const (
	cacheHit  = "hit"
	cacheMiss = "miss"
	cacheSkip = "skip"
)

// LookupServiceOptions groups dependencies for LookupService.
type LookupServiceOptions struct {
	Platform core.SurveyPlatform  // Required
	Cache    core.CacheRepository // Optional: nil disables caching
	// CatalogTTL applies to surveys and messages, ReportTTL to links, stats and history.
	CatalogTTL time.Duration
	ReportTTL  time.Duration
	KeyPrefix  string
	Logger     *slog.Logger
}

// LookupService reads catalog and reporting data from the remote platform
// through a shared cache. Concurrent misses on one key share a single fetch.
type LookupService struct {
	platform   core.SurveyPlatform
	cache      core.CacheRepository
	catalogTTL time.Duration
	reportTTL  time.Duration
	prefix     string
	logger     *slog.Logger
	group      singleflight.Group
}

// NewLookupService constructs a LookupService.
func NewLookupService(opts LookupServiceOptions) (*LookupService, error) {
	if opts.Platform == nil {
		return nil, errors.New("SurveyPlatform is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &LookupService{
		platform:   opts.Platform,
		cache:      opts.Cache,
		catalogTTL: opts.CatalogTTL,
		reportTTL:  opts.ReportTTL,
		prefix:     opts.KeyPrefix,
		logger:     logger.With("component", "lookup_service"),
	}
	if s.catalogTTL <= 0 {
		s.catalogTTL = defaultLookupTTL
	}
	if s.reportTTL <= 0 {
		s.reportTTL = defaultLookupTTL
	}
	return s, nil
}

// cached returns the value under key, calling fetch and storing its result
// on a miss. With skipCache the key is dropped first. Cache failures degrade
// to a direct fetch.
func cached[T any](
	ctx context.Context,
	s *LookupService,
	key string,
	ttl time.Duration,
	skipCache bool,
	fetch func(context.Context) (T, error),
) (T, error) {
	if s.cache == nil {
		return fetch(ctx)
	}
	key = s.prefix + key

	if skipCache {
		if _, err := s.cache.Delete(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "cache delete failed", "key", key, "error", err)
		}
	}
	if raw, err := s.cache.Get(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "cache get failed", "key", key, "error", err)
	} else if raw != nil {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			s.logger.InfoContext(ctx, "cache lookup", "outcome", cacheHit, "key", key)
			return v, nil
		}
		s.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", key)
	}

	res, err, _ := s.group.Do(key, func() (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(v); err != nil {
			s.logger.WarnContext(ctx, "cache encode failed", "key", key, "error", err)
		} else if err := s.cache.Set(ctx, key, raw, ttl); err != nil {
			s.logger.WarnContext(ctx, "cache set failed", "key", key, "error", err)
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	outcome := cacheMiss
	if skipCache {
		outcome = cacheSkip
	}
	s.logger.InfoContext(ctx, "cache lookup", "outcome", outcome, "key", key)
	return res.(T), nil
}

// Surveys returns the survey catalog.
func (s *LookupService) Surveys(ctx context.Context, skipCache bool) ([]qualtrics.Survey, error) {
	return cached(ctx, s, "surveys", s.catalogTTL, skipCache, s.platform.Surveys)
}

// Messages returns every message of the library.
func (s *LookupService) Messages(ctx context.Context, skipCache bool) ([]qualtrics.Message, error) {
	return cached(ctx, s, "messages", s.catalogTTL, skipCache, func(ctx context.Context) ([]qualtrics.Message, error) {
		return s.platform.Messages(ctx, "")
	})
}

// MessagesIn returns the library messages whose category is in categories.
func (s *LookupService) MessagesIn(ctx context.Context, categories []string, skipCache bool) ([]qualtrics.Message, error) {
	all, err := s.Messages(ctx, skipCache)
	if err != nil {
		return nil, err
	}
	return FilterMessages(all, categories), nil
}

// FilterMessages keeps messages whose category is in categories.
func FilterMessages(messages []qualtrics.Message, categories []string) []qualtrics.Message {
	out := make([]qualtrics.Message, 0, len(messages))
	for _, m := range messages {
		if slices.Contains(categories, m.Category) {
			out = append(out, m)
		}
	}
	return out
}

// MessageCategoriesFor returns the message categories usable for mode.
func MessageCategoriesFor(mode model.ContactMode) []string {
	if mode == model.ContactModeSMS {
		return SMSMessageCategories
	}
	return EmailMessageCategories
}

// DistributionLinks returns the generated links of a distribution.
func (s *LookupService) DistributionLinks(
	ctx context.Context,
	distributionID, surveyID string,
	skipCache bool,
) ([]qualtrics.DistributionLink, error) {
	return cached(ctx, s, "links-"+distributionID, s.reportTTL, skipCache,
		func(ctx context.Context) ([]qualtrics.DistributionLink, error) {
			return s.platform.DistributionLinks(ctx, distributionID, surveyID)
		})
}

// DistributionStats returns the counters of an email, link or SMS distribution.
func (s *LookupService) DistributionStats(
	ctx context.Context,
	distributionID, surveyID string,
	sms, skipCache bool,
) (qualtrics.DistributionStats, error) {
	return cached(ctx, s, "stats-"+distributionID, s.reportTTL, skipCache,
		func(ctx context.Context) (qualtrics.DistributionStats, error) {
			if sms {
				return s.platform.SMSStats(ctx, distributionID, surveyID)
			}
			return s.platform.EmailStats(ctx, distributionID, surveyID)
		})
}

// DistributionHistory returns the per-recipient history of a distribution.
func (s *LookupService) DistributionHistory(
	ctx context.Context,
	distributionID string,
	skipCache bool,
) ([]model.HistoryRecord, error) {
	entries, err := cached(ctx, s, "history-"+distributionID, s.reportTTL, skipCache,
		func(ctx context.Context) ([]qualtrics.HistoryEntry, error) {
			return s.platform.DistributionHistory(ctx, distributionID)
		})
	if err != nil {
		return nil, fmt.Errorf("distribution history %s: %w", distributionID, err)
	}
	return HistoryRecords(entries), nil
}

// ContactHistory returns the response history of one contact. It is never cached.
func (s *LookupService) ContactHistory(ctx context.Context, contactID string) ([]model.HistoryRecord, error) {
	entries, err := s.platform.ContactHistory(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("contact history %s: %w", contactID, err)
	}
	return HistoryRecords(entries), nil
}
