// Package catalog holds the resources and priced access tiers on sale.
package catalog

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned for unknown resources.
var ErrNotFound = errors.New("resource not found")

// Tier is a priced access level of a resource, identified by its index.
type Tier struct {
	Name        string `json:"name"`
	PriceSats   int64  `json:"priceSats"`
	Description string `json:"description"`
}

// Resource is something access to which can be purchased per tier.
type Resource struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`
	Tiers []Tier `json:"tiers"`
}

// Tier returns the tier at index, or an error for an out-of-range index.
func (r *Resource) Tier(index int) (*Tier, error) {
	if index < 0 || index >= len(r.Tiers) {
		return nil, fmt.Errorf("resource %s has no tier %d", r.ID, index)
	}
	return &r.Tiers[index], nil
}

// Store provides read access to the catalog.
type Store interface {
	Resource(ctx context.Context, id string) (*Resource, error)
	List(ctx context.Context) ([]*Resource, error)
}
