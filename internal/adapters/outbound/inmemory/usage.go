package inmemory

import (
	"context"
	"slices"

	"github.com/sufield/popc/internal/domain"
)

// LogUsage appends ev.
func (s *Store) LogUsage(ctx context.Context, ev domain.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, ev)
	return nil
}

// UsageEvents returns the logged events in order.
func (s *Store) UsageEvents() []domain.UsageEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.usage)
}
