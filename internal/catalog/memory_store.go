package catalog

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store with a seeded in-memory map.
type MemoryStore struct {
	mu        sync.RWMutex
	resources map[string]*Resource
}

// NewMemoryStore creates a catalog store seeded with the given resources.
func NewMemoryStore(resources ...*Resource) *MemoryStore {
	s := &MemoryStore{resources: make(map[string]*Resource)}
	for _, r := range resources {
		s.resources[r.ID] = r
	}
	return s
}

func (s *MemoryStore) Resource(_ context.Context, id string) (*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Resource, 0, len(s.resources))
	for _, r := range s.resources {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Seed returns the demo catalog used in development mode.
func Seed() []*Resource {
	return []*Resource{
		{
			ID:    "1",
			Name:  "Changpeng Zhao",
			Title: "Founder & CEO, Binance",
			Tiers: []Tier{
				{Name: "Chat", PriceSats: 5_000_000, Description: "Direct message access for 30 days"},
				{Name: "Call", PriceSats: 25_000_000, Description: "30-minute strategy call"},
				{Name: "Coffee", PriceSats: 250_000_000, Description: "In-person meeting"},
			},
		},
		{
			ID:    "2",
			Name:  "Pavel Durov",
			Title: "Founder, Telegram",
			Tiers: []Tier{
				{Name: "Chat", PriceSats: 4_000_000, Description: "Direct message access for 30 days"},
				{Name: "Call", PriceSats: 20_000_000, Description: "30-minute tech discussion"},
				{Name: "Coffee", PriceSats: 200_000_000, Description: "Private meeting"},
			},
		},
		{
			ID:    "3",
			Name:  "Jeremy Allaire",
			Title: "Founder & CEO, Circle",
			Tiers: []Tier{
				{Name: "Chat", PriceSats: 3_000_000, Description: "Direct message access for 30 days"},
				{Name: "Call", PriceSats: 15_000_000, Description: "30-minute business call"},
				{Name: "Coffee", PriceSats: 150_000_000, Description: "Strategic meeting"},
			},
		},
	}
}
