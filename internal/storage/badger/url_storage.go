package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// URL record lifecycle states
const (
	URLStatusNew     = "New"
	URLStatusOnline  = "Online"
	URLStatusOffline = "Offline"
)

// URLStorage is the durable URL database behind the dark-web pipeline.
// Discovered onion URLs accumulate here across runs so a crawl can fall
// back to prior discoveries when the search engines come up empty.
type URLStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewURLStorage creates a new URLStorage instance
func NewURLStorage(db *BadgerDB, logger arbor.ILogger) interfaces.URLStorage {
	return &URLStorage{
		db:     db,
		logger: logger,
	}
}

// Save inserts one URL if not already present
func (s *URLStorage) Save(ctx context.Context, url, source, urlType, baseURL string) error {
	url = strings.TrimSpace(strings.ToLower(url))
	if url == "" {
		return fmt.Errorf("url is required")
	}

	if existing, _ := s.SelectURL(ctx, url); existing != nil {
		return nil
	}

	record := &models.URLRecord{
		Type:          urlType,
		URL:           url,
		BaseURL:       baseURL,
		Status:        URLStatusNew,
		Source:        source,
		DiscoveryDate: time.Now(),
	}
	if err := s.db.Store().Insert(badgerhold.NextSequence(), record); err != nil {
		return fmt.Errorf("failed to insert url: %w", err)
	}
	return nil
}

// BatchSave inserts URLs that are not yet present and returns the number
// actually inserted. Already-known URLs are filtered in one pass first.
func (s *URLStorage) BatchSave(ctx context.Context, urls []string, source, urlType, baseURL string) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	normalized := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, url := range urls {
		url = strings.TrimSpace(strings.ToLower(url))
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		normalized = append(normalized, url)
	}

	keys := make([]interface{}, len(normalized))
	for i, url := range normalized {
		keys[i] = url
	}
	var existing []models.URLRecord
	if err := s.db.Store().Find(&existing, badgerhold.Where("URL").In(keys...)); err != nil {
		return 0, fmt.Errorf("failed to query existing urls: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, record := range existing {
		present[record.URL] = true
	}

	inserted := 0
	now := time.Now()
	for _, url := range normalized {
		if present[url] {
			continue
		}
		record := &models.URLRecord{
			Type:          urlType,
			URL:           url,
			BaseURL:       baseURL,
			Status:        URLStatusNew,
			Source:        source,
			DiscoveryDate: now,
		}
		if err := s.db.Store().Insert(badgerhold.NextSequence(), record); err != nil {
			s.logger.Warn().Err(err).Str("url", url).Msg("Failed to insert discovered URL")
			continue
		}
		inserted++
	}

	s.logger.Debug().
		Int("discovered", len(urls)).
		Int("inserted", inserted).
		Str("source", source).
		Msg("URL batch saved")

	return inserted, nil
}

// SelectURL fetches one record by URL, or nil when unknown
func (s *URLStorage) SelectURL(ctx context.Context, url string) (*models.URLRecord, error) {
	url = strings.TrimSpace(strings.ToLower(url))
	var records []models.URLRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("URL").Eq(url)); err != nil {
		return nil, fmt.Errorf("failed to query url: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Select returns non-Offline records meeting the score thresholds
func (s *URLStorage) Select(ctx context.Context, opts *interfaces.URLSelectOptions) ([]*models.URLRecord, error) {
	query := badgerhold.Where("Status").Ne(URLStatusOffline)
	if opts != nil {
		if opts.MinCategorie > 0 {
			query = query.And("ScoreCategorie").Ge(opts.MinCategorie)
		}
		if opts.MinKeywords > 0 {
			query = query.And("ScoreKeywords").Ge(opts.MinKeywords)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
	}

	var records []models.URLRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to select urls: %w", err)
	}
	result := make([]*models.URLRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// UpdateStatus records a scan result. A 2xx response marks the record
// Online and resets the failure counter; anything else increments it,
// flipping to Offline after failureThreshold consecutive failures.
func (s *URLStorage) UpdateStatus(ctx context.Context, id uint64, url string, httpCode int, failureThreshold int) error {
	record, err := s.get(id, url)
	if err != nil {
		return err
	}

	record.LastScan = time.Now()
	if httpCode >= 200 && httpCode < 300 {
		record.Status = URLStatusOnline
		record.CountStatus = 0
	} else {
		record.CountStatus++
		if failureThreshold > 0 && record.CountStatus >= failureThreshold {
			record.Status = URLStatusOffline
		}
	}

	if err := s.db.Store().Update(record.ID, record); err != nil {
		return fmt.Errorf("failed to update url status: %w", err)
	}
	return nil
}

// UpdateCategorie records the categorization result of a keyword scan
func (s *URLStorage) UpdateCategorie(ctx context.Context, id uint64, categorie, title string, fullMatch bool, scoreCategorie, scoreKeywords int, fullMatchKeywords string) error {
	record, err := s.get(id, "")
	if err != nil {
		return err
	}

	record.Categorie = categorie
	record.Title = title
	record.FullMatchCategorie = fullMatch
	record.ScoreCategorie = scoreCategorie
	record.ScoreKeywords = scoreKeywords
	record.Keywords = fullMatchKeywords
	record.LastScan = time.Now()

	if err := s.db.Store().Update(record.ID, record); err != nil {
		return fmt.Errorf("failed to update url categorie: %w", err)
	}
	return nil
}

func (s *URLStorage) get(id uint64, url string) (*models.URLRecord, error) {
	var record models.URLRecord
	if err := s.db.Store().Get(id, &record); err == nil {
		return &record, nil
	}
	if url != "" {
		record2, err := s.SelectURL(context.Background(), url)
		if err != nil {
			return nil, err
		}
		if record2 != nil {
			return record2, nil
		}
	}
	return nil, fmt.Errorf("url record not found: id=%d url=%s", id, url)
}
