// -----------------------------------------------------------------------
// Domain graph - entities and directed relations discovered by collectors
// -----------------------------------------------------------------------

package models

import "time"

// Entity types commonly produced by collectors. The type set is open:
// collectors may record any string type, these are the well-known ones.
const (
	EntityTypeDomain    = "domain"
	EntityTypeEmail     = "email"
	EntityTypeIPAddress = "ip_address"
	EntityTypeWebsite   = "website"
	EntityTypeKeyword   = "keyword"
	EntityTypeJob       = "job"
	EntityTypeOnionSite = "onion_site"
)

// Relation names for graph edges
const (
	RelationResolvesTo     = "resolves_to"
	RelationContains       = "contains"
	RelationHosts          = "hosts"
	RelationDiscovered     = "discovered"
	RelationSearches       = "searches"
	RelationAssociatedWith = "associated_with"
	RelationLinksTo        = "links_to"
	RelationMentions       = "mentions"
)

// GraphEntity is a node in the domain graph. (Type, Value) is the natural
// key for dedup within a user's graph.
type GraphEntity struct {
	ID           string                 `json:"id" badgerhold:"key"`
	UserID       string                 `json:"user_id"`
	Type         string                 `json:"type"`
	Value        string                 `json:"value"`
	Severity     Severity               `json:"severity,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	DiscoveredAt time.Time              `json:"discovered_at"`
}

// GraphEdge is a directed relation between two entities. The key derived
// from (source, target, relation) makes duplicate writes idempotent.
type GraphEdge struct {
	Key      string                 `json:"key" badgerhold:"key"`
	UserID   string                 `json:"user_id"`
	SourceID string                 `json:"source_id"`
	TargetID string                 `json:"target_id"`
	Relation string                 `json:"relation"`
	Weight   float64                `json:"weight"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	AddedAt  time.Time              `json:"added_at"`
}
