package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
	"github.com/tester620/server-ancestropedia-v1/pkg/tracing"
)

// MirrorService projects person nodes and relation edges into the
// graph store. The relational store stays the source of truth; the
// mirror serves hop queries and is rebuilt per root on demand.
type MirrorService struct {
	client *Client
	logger ectologger.Logger
}

func NewMirrorService(client *Client, logger ectologger.Logger) *MirrorService {
	return &MirrorService{
		client: client,
		logger: logger,
	}
}

// UpsertPerson creates or refreshes a person node.
func (s *MirrorService) UpsertPerson(ctx context.Context, person *models.Person) error {
	ctx, span := tracing.StartSpan(ctx, "graph.MirrorService.UpsertPerson")
	defer span.End()

	props := map[string]any{
		"id":         person.ID,
		"first_name": person.FirstName,
		"last_name":  person.LastName,
		"gender":     string(person.Gender),
		"living":     person.Living,
	}
	if person.BirthDate != nil {
		props["birth_date"] = person.BirthDate.UTC().Format("2006-01-02")
	}

	cypher := `
		MERGE (p:Person {id: $id})
		SET p += $props
		RETURN p
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":    person.ID,
			"props": props,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": person.ID}).Error("Failed to upsert person node in graph")
		return fmt.Errorf("failed to upsert person node: %w", err)
	}
	return nil
}

// LinkRelation merges one edge between two existing person nodes.
func (s *MirrorService) LinkRelation(ctx context.Context, rel models.Relation) error {
	ctx, span := tracing.StartSpan(ctx, "graph.MirrorService.LinkRelation")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (from:Person {id: $from_id})
		MATCH (to:Person {id: $to_id})
		MERGE (from)-[r:%s]->(to)
		RETURN r
	`, relationLabel(rel.Type))

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"from_id": rel.FromID,
			"to_id":   rel.ToID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from": rel.FromID, "to": rel.ToID, "type": rel.Type}).Error("Failed to link relation in graph")
		return fmt.Errorf("failed to link relation: %w", err)
	}
	return nil
}

// ReplacePerson moves every edge of oldID onto newID and removes the
// old node. Mirrors the relational identity merge.
func (s *MirrorService) ReplacePerson(ctx context.Context, oldID, newID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.MirrorService.ReplacePerson")
	defer span.End()

	params := map[string]any{
		"old_id": oldID,
		"new_id": newID,
	}

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MERGE (new:Person {id: $new_id}) RETURN new`, params); err != nil {
			return nil, err
		}

		for _, label := range []string{"FATHER", "MOTHER", "SPOUSE"} {
			out := fmt.Sprintf(`
				MATCH (old:Person {id: $old_id})-[r:%[1]s]->(other)
				WHERE other.id <> $new_id
				MATCH (new:Person {id: $new_id})
				MERGE (new)-[:%[1]s]->(other)
				DELETE r
			`, label)
			if _, err := tx.Run(ctx, out, params); err != nil {
				return nil, err
			}

			in := fmt.Sprintf(`
				MATCH (other)-[r:%[1]s]->(old:Person {id: $old_id})
				WHERE other.id <> $new_id
				MATCH (new:Person {id: $new_id})
				MERGE (other)-[:%[1]s]->(new)
				DELETE r
			`, label)
			if _, err := tx.Run(ctx, in, params); err != nil {
				return nil, err
			}
		}

		result, err := tx.Run(ctx, `MATCH (old:Person {id: $old_id}) DETACH DELETE old`, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"old_id": oldID, "new_id": newID}).Error("Failed to replace person node in graph")
		return fmt.Errorf("failed to replace person node: %w", err)
	}
	return nil
}

// RemovePerson detaches and deletes a person node.
func (s *MirrorService) RemovePerson(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.MirrorService.RemovePerson")
	defer span.End()

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `MATCH (p:Person {id: $id}) DETACH DELETE p`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to remove person node from graph")
		return fmt.Errorf("failed to remove person node: %w", err)
	}
	return nil
}

// relationLabel maps a relation type to a safe Cypher label.
func relationLabel(t models.RelationType) string {
	label := strings.ToUpper(string(t))
	result := ""
	for _, c := range label {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result += string(c)
		}
	}
	if result == "" {
		return "RELATED"
	}
	return result
}
