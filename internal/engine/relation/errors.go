package relation

import "errors"

var (
	// ErrDepthExceeded is returned when a chain is longer than the
	// configured maximum. Raised before any store access.
	ErrDepthExceeded = errors.New("relation chain exceeds maximum depth")

	// ErrFrontierExceeded is returned when the id set between hops
	// grows past the configured bound.
	ErrFrontierExceeded = errors.New("traversal frontier exceeds maximum size")

	// ErrUnknownRelationType is returned when a hop references an
	// undefined relation type slug.
	ErrUnknownRelationType = errors.New("unknown relation type")

	// ErrUnknownFacetType is returned when a terminal facet check
	// references an undefined facet type slug.
	ErrUnknownFacetType = errors.New("unknown facet type")

	// ErrTypeMismatch is returned when a hop's relation type does not
	// connect the entity types in sequence.
	ErrTypeMismatch = errors.New("relation type does not connect entity types in sequence")

	// ErrInvalidDirection is returned when a hop's direction is neither
	// outgoing nor incoming.
	ErrInvalidDirection = errors.New("invalid hop direction")
)
