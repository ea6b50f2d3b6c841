package notifications

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	tenantID string
	userID   string
	Notification
}

// MemoryStore keeps notifications in process for the memory driver and tests.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) CreateNotification(ctx context.Context, tenantID, userID, ntype, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.entries = append(s.entries, memoryEntry{
		tenantID: tenantID,
		userID:   userID,
		Notification: Notification{
			ID:        strconv.FormatInt(s.nextID, 10),
			Type:      ntype,
			Title:     title,
			Body:      body,
			CreatedAt: time.Now().UTC(),
		},
	})
	return nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, tenantID, userID string, limit, offset int) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, 0)
	skipped := 0
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		if e.tenantID != tenantID || e.userID != userID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, e.Notification)
	}
	return out, nil
}

func (s *MemoryStore) CountNotifications(ctx context.Context, tenantID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, e := range s.entries {
		if e.tenantID == tenantID && e.userID == userID {
			total++
		}
	}
	return total, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, tenantID, userID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		e := &s.entries[i]
		if e.tenantID != tenantID || e.userID != userID || e.ID != notificationID {
			continue
		}
		if e.ReadAt == nil {
			now := time.Now().UTC()
			e.ReadAt = &now
		}
		return nil
	}
	return ErrNotFound
}
