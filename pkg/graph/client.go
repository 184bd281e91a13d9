// Package graph mirrors contact clusters into Memgraph/Neo4j over Bolt.
package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

const defaultBoltPort = 7687

// Client owns the Bolt driver used to write the contact projection.
type Client struct {
	driver neo4j.DriverWithContext
	logger ectologger.Logger
}

// Config locates the graph database. Username may be empty for an
// unauthenticated Memgraph.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (c Config) URI() string {
	port := c.Port
	if port == 0 {
		port = defaultBoltPort
	}
	return fmt.Sprintf("bolt://%s:%d", c.Host, port)
}

func (c Config) auth() neo4j.AuthToken {
	if c.Username == "" {
		return neo4j.NoAuth()
	}
	return neo4j.BasicAuth(c.Username, c.Password, "")
}

// NewClient builds the driver. No connection is made until the first session,
// so callers verify connectivity themselves.
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI(), cfg.auth())
	if err != nil {
		return nil, fmt.Errorf("failed to create bolt driver for %s: %w", cfg.URI(), err)
	}
	logger.WithField("uri", cfg.URI()).Debug("Created contact graph driver")

	return &Client{driver: driver, logger: logger}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Ping is registered with the readiness checker.
func (c *Client) Ping(ctx context.Context) error {
	return c.VerifyConnectivity(ctx)
}

// ExecuteWrite runs work in a retried write transaction on a fresh session.
func (c *Client) ExecuteWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteWrite")
	defer span.End()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, work)
	if err != nil {
		tracing.RecordError(span, err)
		c.logger.WithContext(ctx).WithError(err).Debug("Contact graph write failed")
	}
	return out, err
}
