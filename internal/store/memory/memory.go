// Package memory provides an in-memory RecordStore and ProfileStore for
// tests and credential-free local runs. Semantics mirror the Postgres
// implementation: conditional creates, single-write field updates.
package memory

import (
	"context"
	"sync"
	"time"

	"callinsight/internal/models"
	"callinsight/internal/store"
)

// Store implements store.RecordStore and store.ProfileStore over maps.
type Store struct {
	mu       sync.RWMutex
	records  map[string]models.CallRecord
	profiles map[string]models.AnalysisProfile

	// now is swappable so tests can pin timestamps.
	now func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		records:  make(map[string]models.CallRecord),
		profiles: make(map[string]models.AnalysisProfile),
		now:      time.Now,
	}
}

// CreateIfAbsent inserts the record, reporting store.ErrAlreadyExists if a
// record for the call id was inserted earlier.
func (s *Store) CreateIfAbsent(_ context.Context, rec models.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.CallID]; ok {
		return store.ErrAlreadyExists
	}
	if rec.LastUpdatedTimestamp.IsZero() {
		rec.LastUpdatedTimestamp = s.now().UTC()
	}
	s.records[rec.CallID] = cloneRecord(rec)
	return nil
}

// Get returns a copy of the record or store.ErrNotFound.
func (s *Store) Get(_ context.Context, callID string) (models.CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[callID]
	if !ok {
		return models.CallRecord{}, store.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// UpdateFields applies the status, timestamp, supplied fields and error
// message in one step, as a single-record atomic write.
func (s *Store) UpdateFields(_ context.Context, callID string, status models.Status, fields store.Fields, errMsg *string) (models.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[callID]
	if !ok {
		return models.CallRecord{}, store.ErrNotFound
	}

	rec.Status = status
	ts := s.now().UTC()
	if ts.Before(rec.LastUpdatedTimestamp) {
		// last_updated_timestamp is monotone non-decreasing.
		ts = rec.LastUpdatedTimestamp
	}
	rec.LastUpdatedTimestamp = ts

	if fields.TranscriptionResult != nil {
		rec.TranscriptionResult = append([]byte(nil), fields.TranscriptionResult...)
	}
	if fields.AnalysisResult != nil {
		rec.AnalysisResult = cloneStringMap(fields.AnalysisResult)
	}
	if fields.TranscriptionID != "" {
		rec.TranscriptionID = fields.TranscriptionID
	}
	if fields.AnalysisID != "" {
		rec.AnalysisID = fields.AnalysisID
	}
	if errMsg != nil {
		rec.ErrorMessage = *errMsg
	} else {
		rec.ErrorMessage = ""
	}

	s.records[callID] = rec
	return cloneRecord(rec), nil
}

// PutProfile seeds a profile. Profiles are external configuration; this
// exists for tests and local runs only.
func (s *Store) PutProfile(p models.AnalysisProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

// GetProfile returns a profile or store.ErrProfileNotFound.
func (s *Store) GetProfile(_ context.Context, profileID string) (models.AnalysisProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[profileID]
	if !ok {
		return models.AnalysisProfile{}, store.ErrProfileNotFound
	}
	return p, nil
}

// SetClock pins the store's clock. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func cloneRecord(rec models.CallRecord) models.CallRecord {
	out := rec
	if rec.TranscriptionResult != nil {
		out.TranscriptionResult = append([]byte(nil), rec.TranscriptionResult...)
	}
	out.AnalysisResult = cloneStringMap(rec.AnalysisResult)
	out.Metadata = cloneStringMap(rec.Metadata)
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
