package core

import (
	"context"
	"fmt"
)

// NewKnownCollectionsRule denies every path outside the projects tree,
// including direct access to token records.
func NewKnownCollectionsRule() Rule {
	return knownCollectionsRule{}
}

type knownCollectionsRule struct{}

func (knownCollectionsRule) Name() string { return "known_collections" }

func (r knownCollectionsRule) Evaluate(_ context.Context, req AccessRequest) (Result, error) {
	if shapeOf(req.Segments()) != shapeUnknown {
		return Result{}, nil
	}
	return block(r.Name(), req.Path, fmt.Sprintf("%q is not an accessible collection", req.Path)), nil
}
