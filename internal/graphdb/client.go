// Package graphdb executes queries against Neo4j and exposes its schema.
package graphdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"topwr_rag/internal/core"
	"topwr_rag/pkg"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
)

// Config holds the Neo4j connection settings
type Config struct {
	URI          string        `yaml:"uri" envconfig:"NEO4J_URI"`
	Username     string        `yaml:"username" envconfig:"NEO4J_USERNAME"`
	Password     string        `yaml:"password" envconfig:"NEO4J_PASSWORD"`
	Database     string        `yaml:"database" envconfig:"NEO4J_DATABASE"`
	QueryTimeout time.Duration `yaml:"query_timeout" envconfig:"NEO4J_QUERY_TIMEOUT"`
	SchemaTTL    time.Duration `yaml:"schema_ttl" envconfig:"NEO4J_SCHEMA_TTL"`
}

// DefaultConfig returns the default Neo4j settings
func DefaultConfig() Config {
	return Config{
		URI:          "neo4j://localhost:7687",
		Username:     "neo4j",
		QueryTimeout: 30 * time.Second,
		SchemaTTL:    10 * time.Minute,
	}
}

// QueryError is a failure reported by the database for a query
type QueryError struct {
	Code    string
	Message string
}

func (e *QueryError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client runs read-only queries. It implements core.QueryExecutor.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
}

var _ core.QueryExecutor = (*Client)(nil)

// NewClient connects to Neo4j and verifies the connection
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", cfg.URI, err)
	}

	zerolog.Ctx(ctx).Info().Str("uri", cfg.URI).Str("database", cfg.Database).Msg("Connected to Neo4j")
	return &Client{driver: driver, database: cfg.Database, timeout: cfg.QueryTimeout}, nil
}

// Close releases the driver
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Execute runs query in a read transaction and returns its rows as plain values
func (c *Client) Execute(ctx context.Context, query string) ([]pkg.Row, error) {
	records, err := c.read(ctx, query)
	if err != nil {
		return nil, err
	}
	rows := make([]pkg.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, recordToRow(rec))
	}
	return rows, nil
}

// Explain asks the planner for query's plan without running it
func (c *Client) Explain(ctx context.Context, query string) error {
	_, err := c.read(ctx, "EXPLAIN "+query)
	return err
}

func (c *Client) read(ctx context.Context, query string) ([]*neo4j.Record, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, toQueryError(err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, toQueryError(err)
	}
	return records, nil
}

func toQueryError(err error) error {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return &QueryError{Code: neoErr.Code, Message: neoErr.Msg}
	}
	return err
}

func recordToRow(rec *neo4j.Record) pkg.Row {
	row := make(pkg.Row, len(rec.Keys))
	for i, key := range rec.Keys {
		row[key] = toPlain(rec.Values[i])
	}
	return row
}
