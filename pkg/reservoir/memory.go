package reservoir

import (
	"context"
	"sort"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/travigo/ridership/pkg/ctdf"
)

// MemoryStore is an in process Store. Records are copied in and out so callers never share
// status or timestamps with the stored copy.
type MemoryStore struct {
	mutex   sync.RWMutex
	records map[string]*ctdf.PassengerRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]*ctdf.PassengerRecord{},
	}
}

func (m *MemoryStore) InsertMany(ctx context.Context, records []*ctdf.PassengerRecord) ([]*ctdf.PassengerRecord, error) {
	if err := ctx.Err(); err != nil {
		return records, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	var failed []*ctdf.PassengerRecord
	for _, record := range records {
		if _, exists := m.records[record.PrimaryIdentifier]; exists || record.PrimaryIdentifier == "" {
			failed = append(failed, record)
			continue
		}

		stored, err := copyRecord(record)
		if err != nil {
			failed = append(failed, record)
			continue
		}
		m.records[record.PrimaryIdentifier] = stored
	}

	return failed, nil
}

func (m *MemoryStore) Get(ctx context.Context, identifier string) (*ctdf.PassengerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	record, exists := m.records[identifier]
	if !exists {
		return nil, ErrNotFound
	}

	return copyRecord(record)
}

func (m *MemoryStore) Find(ctx context.Context, query Query) ([]*ctdf.PassengerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	var matched []*ctdf.PassengerRecord
	for _, record := range m.records {
		if query.matches(record) {
			matched = append(matched, record)
		}
	}
	m.mutex.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].SpawnTime.Equal(matched[j].SpawnTime) {
			return matched[i].PrimaryIdentifier < matched[j].PrimaryIdentifier
		}
		return matched[i].SpawnTime.Before(matched[j].SpawnTime)
	})

	if query.Limit > 0 && int64(len(matched)) > query.Limit {
		matched = matched[:query.Limit]
	}

	results := make([]*ctdf.PassengerRecord, 0, len(matched))
	for _, record := range matched {
		copied, err := copyRecord(record)
		if err != nil {
			return nil, err
		}
		results = append(results, copied)
	}

	return results, nil
}

func (m *MemoryStore) ConditionalUpdate(ctx context.Context, identifier string, condition Condition, update Update) (*ctdf.PassengerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, exists := m.records[identifier]
	if !exists || !condition.matches(record) || !ctdf.CanTransition(record.Status, update.Status) {
		return nil, nil
	}

	update.apply(record)

	return copyRecord(record)
}

func (m *MemoryStore) CountWaiting(ctx context.Context, entityType ctdf.PassengerEntityType, entityRef string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var count int64
	for _, record := range m.records {
		if record.EntityType == entityType && record.EntityRef == entityRef && record.Status == ctdf.PassengerStatusWaiting {
			count++
		}
	}

	return count, nil
}

func copyRecord(record *ctdf.PassengerRecord) (*ctdf.PassengerRecord, error) {
	copied := &ctdf.PassengerRecord{}
	err := copier.Copy(copied, record)

	return copied, err
}
