package domain

import "time"

// NodeType classifies what a graph node represents (spec §3.1).
type NodeType string

const (
	NodeEntity    NodeType = "entity"
	NodeConcept   NodeType = "concept"
	NodeEvent     NodeType = "event"
	NodeRelation  NodeType = "relation_node"
	NodeAttribute NodeType = "attribute"
)

// GraphNode wraps a Memory with a node-type.
type GraphNode struct {
	ID       string   `json:"id"`
	OrgID    string   `json:"org_id"`
	Memory   Memory   `json:"memory"`
	NodeType NodeType `json:"node_type"`
}

// GetID and GetOrgID satisfy storage.Entity.
func (n GraphNode) GetID() string    { return n.ID }
func (n GraphNode) GetOrgID() string { return n.OrgID }

// RelationType enumerates the directed, typed relations an edge may carry.
// Custom(name) is represented by RelationCustom with Name populated.
type RelationType string

const (
	RelationIsA        RelationType = "is_a"
	RelationPartOf      RelationType = "part_of"
	RelationRelatedTo   RelationType = "related_to"
	RelationCausedBy    RelationType = "caused_by"
	RelationBeforeAfter RelationType = "before_after"
	RelationSimilarTo   RelationType = "similar_to"
	RelationOppositeOf  RelationType = "opposite_of"
	RelationCustom      RelationType = "custom"
)

// GraphEdge is a directed, typed connection between two graph nodes.
type GraphEdge struct {
	ID         string         `json:"id"`
	OrgID      string         `json:"org_id"`
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Relation   RelationType   `json:"relation"`
	CustomName string         `json:"custom_name,omitempty"` // populated only when Relation == RelationCustom
	Weight     float64        `json:"weight"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// GetID and GetOrgID satisfy storage.Entity.
func (e GraphEdge) GetID() string    { return e.ID }
func (e GraphEdge) GetOrgID() string { return e.OrgID }

// RelationName returns the effective relation label, resolving Custom(name).
func (e GraphEdge) RelationName() string {
	if e.Relation == RelationCustom {
		return e.CustomName
	}
	return string(e.Relation)
}
