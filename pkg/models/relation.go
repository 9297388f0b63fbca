package models

type RelationType string

const (
	RelationTypeFather RelationType = "father"
	RelationTypeMother RelationType = "mother"
	RelationTypeSpouse RelationType = "spouse"
)

// Relation is a derived edge-list view of the embedded pointers on
// Person records. It is computed on demand and mirrored to the graph
// store; it is never an independent source of truth.
type Relation struct {
	RootID string       `json:"root_id"`
	FromID string       `json:"from_id"`
	ToID   string       `json:"to_id"`
	Type   RelationType `json:"type"`
}
