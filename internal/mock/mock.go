// Package mock provides test doubles for the pipeline capability interfaces
// using function fields.
package mock

import (
	"context"
	"sync"

	"topwr_rag/internal/core"
	"topwr_rag/pkg"

	"github.com/cloudwego/eino/schema"
)

// Interface compliance checks.
var (
	_ core.Completion     = (*Completion)(nil)
	_ core.SchemaProvider = (*SchemaProvider)(nil)
	_ core.QueryExecutor  = (*QueryExecutor)(nil)
	_ core.SessionStore   = (*SessionStore)(nil)
	_ core.Journal        = (*Journal)(nil)
	_ core.Node           = (*Node)(nil)
)

// Completion is a test double for core.Completion.
// Set CompleteFn before calling Complete.
type Completion struct {
	CompleteFn func(ctx context.Context, messages []*schema.Message) (string, error)

	mu    sync.Mutex
	calls [][]*schema.Message
}

// Complete records the call and delegates to CompleteFn.
func (c *Completion) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, messages)
	c.mu.Unlock()
	return c.CompleteFn(ctx, messages)
}

// Calls returns the messages of every Complete call so far.
func (c *Completion) Calls() [][]*schema.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]*schema.Message(nil), c.calls...)
}

// SchemaProvider is a test double for core.SchemaProvider.
type SchemaProvider struct {
	SchemaFn func(ctx context.Context) (string, error)
}

// Schema delegates to SchemaFn.
func (s *SchemaProvider) Schema(ctx context.Context) (string, error) {
	return s.SchemaFn(ctx)
}

// QueryExecutor is a test double for core.QueryExecutor.
// Set the function fields for the methods you need.
type QueryExecutor struct {
	ExecuteFn func(ctx context.Context, query string) ([]pkg.Row, error)
	ExplainFn func(ctx context.Context, query string) error
}

// Execute delegates to ExecuteFn.
func (e *QueryExecutor) Execute(ctx context.Context, query string) ([]pkg.Row, error) {
	return e.ExecuteFn(ctx, query)
}

// Explain delegates to ExplainFn.
func (e *QueryExecutor) Explain(ctx context.Context, query string) error {
	return e.ExplainFn(ctx, query)
}

// SessionStore is a test double for core.SessionStore.
type SessionStore struct {
	GetFn func(ctx context.Context, sessionID string) ([]string, error)
	PutFn func(ctx context.Context, sessionID string, history []string) error
}

// Get delegates to GetFn.
func (s *SessionStore) Get(ctx context.Context, sessionID string) ([]string, error) {
	return s.GetFn(ctx, sessionID)
}

// Put delegates to PutFn.
func (s *SessionStore) Put(ctx context.Context, sessionID string, history []string) error {
	return s.PutFn(ctx, sessionID, history)
}

// Journal is a test double for core.Journal.
type Journal struct {
	AppendFn func(ctx context.Context, record pkg.ExchangeRecord) error
}

// Append delegates to AppendFn.
func (j *Journal) Append(ctx context.Context, record pkg.ExchangeRecord) error {
	return j.AppendFn(ctx, record)
}

// Node is a test double for core.Node.
type Node struct {
	Type      core.NodeType
	ExecuteFn func(ctx context.Context, state core.PipelineState) (core.StateUpdate, error)
}

// Execute delegates to ExecuteFn.
func (n *Node) Execute(ctx context.Context, state core.PipelineState) (core.StateUpdate, error) {
	return n.ExecuteFn(ctx, state)
}

// GetName returns the node type as its name.
func (n *Node) GetName() string {
	return string(n.Type)
}

// GetType returns Type.
func (n *Node) GetType() core.NodeType {
	return n.Type
}
