package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/time/rate"

	"github.com/matijazezelj/terramap/pkg/models"
)

const syncBatchSize = 500

// SyncToMemgraph mirrors one run's final graph into Memgraph, replacing
// whatever is there. Batches are throttled with limiter so a large run
// does not monopolize a shared instance; pass nil to sync unthrottled.
func SyncToMemgraph(ctx context.Context, doc *Document, driver neo4j.DriverWithContext, limiter *rate.Limiter, logger *slog.Logger) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx) //nolint:errcheck // best-effort cleanup

	logger.Info("clearing memgraph data")
	if _, err := session.Run(ctx, "MATCH (n) DETACH DELETE n", nil); err != nil {
		return fmt.Errorf("clearing memgraph: %w", err)
	}

	logger.Info("creating memgraph indexes")
	for _, cypher := range []string{
		"CREATE INDEX ON :Resource(id)",
		"CREATE INDEX ON :Resource(type)",
	} {
		if _, err := session.Run(ctx, cypher, nil); err != nil {
			logger.Warn("creating index (may already exist)", "error", err)
		}
	}

	ids := make([]string, 0, len(doc.Graph))
	for id := range doc.Graph {
		ids = append(ids, id)
	}

	logger.Info("syncing nodes to memgraph", "count", len(ids))
	for i := 0; i < len(ids); i += syncBatchSize {
		end := i + syncBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		if err := waitBatch(ctx, limiter); err != nil {
			return err
		}

		nodeParams := make([]map[string]any, 0, end-i)
		for _, id := range ids[i:end] {
			nodeParams = append(nodeParams, nodeToParams(id, doc.Meta[id]))
		}

		cypher := `
			UNWIND $nodes AS n
			CREATE (r:Resource {
				id: n.id, name: n.name, type: n.type,
				module: n.module, metadata: n.metadata
			})
		`
		if _, err := session.Run(ctx, cypher, map[string]any{"nodes": nodeParams}); err != nil {
			return fmt.Errorf("syncing node batch %d-%d: %w", i, end, err)
		}
	}

	type edge struct{ from, to string }
	var edges []edge
	for _, from := range ids {
		for _, to := range doc.Graph[from] {
			edges = append(edges, edge{from, to})
		}
	}

	logger.Info("syncing edges to memgraph", "count", len(edges))
	for i := 0; i < len(edges); i += syncBatchSize {
		end := i + syncBatchSize
		if end > len(edges) {
			end = len(edges)
		}

		if err := waitBatch(ctx, limiter); err != nil {
			return err
		}

		edgeParams := make([]map[string]any, 0, end-i)
		for _, e := range edges[i:end] {
			edgeParams = append(edgeParams, map[string]any{"fromID": e.from, "toID": e.to})
		}

		cypher := `
			UNWIND $edges AS e
			MATCH (from:Resource {id: e.fromID})
			MATCH (to:Resource {id: e.toID})
			CREATE (from)-[:DEPENDS_ON]->(to)
		`
		if _, err := session.Run(ctx, cypher, map[string]any{"edges": edgeParams}); err != nil {
			return fmt.Errorf("syncing edge batch %d-%d: %w", i, end, err)
		}
	}

	logger.Info("memgraph sync complete", "nodes", len(ids), "edges", len(edges))
	return nil
}

func waitBatch(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting on sync rate limit: %w", err)
	}
	return nil
}

func nodeToParams(id string, meta map[string]any) map[string]any {
	metaJSON, _ := json.Marshal(meta)
	return map[string]any{
		"id":       id,
		"name":     models.LocalName(id),
		"type":     models.ResourceType(id),
		"module":   models.ModulePath(id),
		"metadata": string(metaJSON),
	}
}
