// Package relation resolves multi-hop relation chains over the entity
// graph. Traversal is an iterative frontier-set expansion: one batched
// query per hop, never per-path recursion, so cost stays proportional
// to the edges touched even on high fan-out relation types.
package relation

import (
	"github.com/google/uuid"
)

// Direction says which way a hop follows its relation type.
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

// Valid reports whether d is a declared direction.
func (d Direction) Valid() bool {
	return d == Outgoing || d == Incoming
}

// HopFilter restricts which edges a hop may traverse.
type HopFilter struct {
	MinConfidence *float64               `json:"min_confidence,omitempty"`
	VerifiedOnly  bool                   `json:"verified_only,omitempty"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
}

// Hop is one traversal step in a relation chain.
type Hop struct {
	RelationType string     `json:"relation_type"`
	Direction    Direction  `json:"direction"`
	Filters      *HopFilter `json:"filters,omitempty"`
}

// PathStep records the frontier reached after one hop, for explaining
// why an entity matched a chain. Diagnostic only.
type PathStep struct {
	RelationType string      `json:"relation_type"`
	RelationName string      `json:"relation_name"`
	Direction    Direction   `json:"direction"`
	EntityIDs    []uuid.UUID `json:"entity_ids"`
}

// Config bounds traversal cost.
type Config struct {
	// MaxDepth is the maximum number of hops per chain.
	MaxDepth int
	// MaxFrontier caps the id set carried between hops.
	MaxFrontier int
}

// DefaultConfig returns the conservative defaults: depth 3 has been the
// validated bound for this graph's fan-out.
func DefaultConfig() Config {
	return Config{
		MaxDepth:    3,
		MaxFrontier: 100000,
	}
}
