package cache

import (
	"context"
	"sort"
	"sync"

	"health-alert-inference/models"
)

const DefaultMaxEntries = 30

// MemoryStore keeps patient history in process memory. Used when no redis
// address is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	patients   map[string]map[string]models.TelemetrySample
	maxEntries int
}

func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		patients:   make(map[string]map[string]models.TelemetrySample),
		maxEntries: maxEntries,
	}
}

func (ms *MemoryStore) Append(_ context.Context, sample models.TelemetrySample) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	byDate, ok := ms.patients[sample.PatientID]
	if !ok {
		byDate = make(map[string]models.TelemetrySample)
		ms.patients[sample.PatientID] = byDate
	}
	byDate[sample.Date] = sample

	if len(byDate) > ms.maxEntries {
		dates := make([]string, 0, len(byDate))
		for d := range byDate {
			dates = append(dates, d)
		}
		sort.Strings(dates)
		for _, d := range dates[:len(dates)-ms.maxEntries] {
			delete(byDate, d)
		}
	}
	return nil
}

func (ms *MemoryStore) Recent(_ context.Context, patientID, before string, n int) ([]models.TelemetrySample, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	byDate := ms.patients[patientID]
	samples := make([]models.TelemetrySample, 0, len(byDate))
	for date, s := range byDate {
		if dateBefore(date, before) {
			samples = append(samples, s)
		}
	}
	return latest(samples, n), nil
}

func (ms *MemoryStore) Ping(context.Context) error {
	return nil
}

func (ms *MemoryStore) Close() error {
	return nil
}

// dateBefore reports whether date precedes bound. An empty bound admits every date.
func dateBefore(date, bound string) bool {
	return bound == "" || date < bound
}

// latest sorts samples by date and keeps the last n.
func latest(samples []models.TelemetrySample, n int) []models.TelemetrySample {
	sort.Slice(samples, func(i, j int) bool { return samples[i].Date < samples[j].Date })
	if n > 0 && len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	return samples
}
