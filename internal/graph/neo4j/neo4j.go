package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/riskmap/internal/graph"
)

// Neo4jRepository implements graph.Repository using Neo4j.
type Neo4jRepository struct {
	driver neo4j.DriverWithContext
}

// NewNeo4j creates a Neo4j-backed repository.
func NewNeo4j(ctx context.Context, uri, username, password string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver}, nil
}

func (r *Neo4jRepository) RecordMatches(ctx context.Context, s graph.ScenarioNode, links []graph.Link) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"MERGE (s:Scenario {id: $id}) SET s.name = $name, s.riskType = $risk "+
				"WITH s OPTIONAL MATCH (s)-[m:MATCHED]->() DELETE m",
			map[string]any{"id": s.ID, "name": s.Name, "risk": s.RiskType})
		if err != nil {
			return nil, err
		}
		for _, l := range links {
			_, err := tx.Run(ctx,
				"MATCH (s:Scenario {id: $sid}) "+
					"MERGE (c:Case {id: $cid}) SET c.name = $cname "+
					"MERGE (s)-[m:MATCHED]->(c) SET m.similarity = $sim, m.rank = $rank",
				map[string]any{"sid": s.ID, "cid": l.CaseID, "cname": l.CaseName, "sim": l.Similarity, "rank": l.Rank})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("record lineage %s: %w", s.ID, err)
	}
	return nil
}

func (r *Neo4jRepository) ScenariosForCase(ctx context.Context, caseID string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (s:Scenario)-[m:MATCHED]->(:Case {id: $id}) RETURN s.id ORDER BY m.similarity DESC, s.id",
			map[string]any{"id": caseID})
		if err != nil {
			return nil, err
		}
		var ids []string
		for records.Next(ctx) {
			id, _ := records.Record().Get("s.id")
			if s, ok := id.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids, records.Err()
	})
	if err != nil {
		return nil, err
	}
	ids, _ := result.([]string)
	return ids, nil
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Repository = (*Neo4jRepository)(nil)
