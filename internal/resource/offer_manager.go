package resource

import (
	"context"
	"fmt"

	"docprov/internal/docdb"
)

// OfferManager reads and replaces the throughput offers of databases and collections
type OfferManager struct {
	client  docdb.Client
	mutator *RetryingMutator
}

// NewOfferManager creates a new OfferManager
func NewOfferManager(client docdb.Client, mutator *RetryingMutator) *OfferManager {
	return &OfferManager{
		client:  client,
		mutator: mutator,
	}
}

// Throughput returns the provisioned throughput of a resource. The second
// result is false when the resource has no offer of its own.
func (om *OfferManager) Throughput(ctx context.Context, resourceLink string) (int, bool, error) {
	offer, err := om.client.ReadOffer(ctx, resourceLink)
	if err != nil {
		if IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("unable to read offer of %s: %w", resourceLink, err)
	}
	return offer.Throughput, true, nil
}

// SetThroughput replaces the offer of a resource, retrying conflicts
func (om *OfferManager) SetThroughput(ctx context.Context, resourceLink string, throughput int) (*docdb.OfferInfo, error) {
	if throughput <= 0 {
		return nil, fmt.Errorf("throughput must be positive, got %d", throughput)
	}
	if om.mutator == nil {
		return nil, fmt.Errorf("offer manager has no retrying mutator")
	}

	return Mutate(ctx, om.mutator, func(ctx context.Context) (*docdb.OfferInfo, error) {
		return om.client.ReplaceOffer(ctx, resourceLink, throughput)
	})
}
