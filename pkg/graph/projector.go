package graph

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	upsertContactsCypher = `
		UNWIND $contacts AS props
		MERGE (c:Contact {id: props.id})
		SET c = props
	`
	unlinkPrimariesCypher = `
		UNWIND $primaries AS primary_id
		MATCH (c:Contact {id: primary_id})-[old:LINKED_TO]->()
		DELETE old
	`
	unlinkStaleCypher = `
		UNWIND $links AS link
		MATCH (s:Contact {id: link.from})-[old:LINKED_TO]->(p:Contact)
		WHERE p.id <> link.to
		DELETE old
	`
	linkCypher = `
		UNWIND $links AS link
		MATCH (s:Contact {id: link.from}), (p:Contact {id: link.to})
		MERGE (s)-[:LINKED_TO]->(p)
	`
)

// Statement is one parameterised Cypher query.
type Statement struct {
	Cypher string
	Params map[string]any
}

type writer interface {
	ExecuteWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error)
}

// Projector keeps the graph copy of each cluster in step with the store.
type Projector struct {
	client writer
	logger ectologger.Logger
}

var _ identity.Listener = (*Projector)(nil)

func NewProjector(client *Client, logger ectologger.Logger) *Projector {
	return &Projector{client: client, logger: logger}
}

// OnIdentified projects the cluster of a committed Identify. Graph failures
// are logged and counted only.
func (p *Projector) OnIdentified(ctx context.Context, result *identity.Result) {
	if result == nil || len(result.Contacts) == 0 {
		return
	}
	if err := p.Project(ctx, result.Contacts); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("contact_ids", contactIDs(result.Contacts)).Error("Failed to project cluster into graph")
	}
}

// Project writes the given contacts and their LINKED_TO edges in one transaction.
func (p *Projector) Project(ctx context.Context, contacts []models.Contact) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.Project")
	defer span.End()

	statements := BuildProjection(contacts)
	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range statements {
			if _, err := tx.Run(ctx, stmt.Cypher, stmt.Params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		metrics.RecordGraphProjection("error")
		return err
	}

	metrics.RecordGraphProjection("projected")
	p.logger.WithContext(ctx).WithField("contact_count", len(contacts)).Debug("Projected cluster into graph")
	return nil
}

// BuildProjection returns the statements that make the graph match contacts:
// node upserts, removal of edges that no longer hold, then secondary to
// primary edges.
func BuildProjection(contacts []models.Contact) []Statement {
	if len(contacts) == 0 {
		return nil
	}

	nodes := make([]map[string]any, 0, len(contacts))
	var primaries []int64
	var links []map[string]any
	for _, c := range contacts {
		nodes = append(nodes, nodeProps(c))
		if c.IsPrimary() {
			primaries = append(primaries, c.ID)
			continue
		}
		if c.LinkedID != nil {
			links = append(links, map[string]any{"from": c.ID, "to": *c.LinkedID})
		}
	}

	statements := []Statement{{Cypher: upsertContactsCypher, Params: map[string]any{"contacts": nodes}}}
	if len(primaries) > 0 {
		statements = append(statements, Statement{Cypher: unlinkPrimariesCypher, Params: map[string]any{"primaries": primaries}})
	}
	if len(links) > 0 {
		statements = append(statements,
			Statement{Cypher: unlinkStaleCypher, Params: map[string]any{"links": links}},
			Statement{Cypher: linkCypher, Params: map[string]any{"links": links}},
		)
	}
	return statements
}

func nodeProps(c models.Contact) map[string]any {
	props := map[string]any{
		"id":              c.ID,
		"link_precedence": string(c.LinkPrecedence),
		"created_at":      c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		"updated_at":      c.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if c.Email != nil {
		props["email"] = *c.Email
	}
	if c.PhoneNumber != nil {
		props["phone_number"] = *c.PhoneNumber
	}
	return props
}

func contactIDs(contacts []models.Contact) []int64 {
	ids := make([]int64, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}
	return ids
}
