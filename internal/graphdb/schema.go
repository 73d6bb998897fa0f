package graphdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"topwr_rag/internal/core"
	"topwr_rag/internal/metrics"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	nodePropertiesQuery = `CALL db.schema.nodeTypeProperties()
YIELD nodeLabels, propertyName, propertyTypes
RETURN nodeLabels, propertyName, propertyTypes`

	relPropertiesQuery = `CALL db.schema.relTypeProperties()
YIELD relType, propertyName, propertyTypes
RETURN relType, propertyName, propertyTypes`

	patternsQuery = `MATCH (a)-[r]->(b)
WITH labels(a) AS start, type(r) AS rel, labels(b) AS end
WHERE size(start) > 0 AND size(end) > 0
RETURN DISTINCT start[0] AS start, rel, end[0] AS end
LIMIT 500`
)

// Property is one typed property of a label or relationship type
type Property struct {
	Name string
	Type string
}

// TypeProperties lists the properties seen on one label or relationship type
type TypeProperties struct {
	Type       string
	Properties []Property
}

// Pattern is a relationship shape present in the graph
type Pattern struct {
	Start string
	Type  string
	End   string
}

// SchemaInfo is the introspected structure of the graph
type SchemaInfo struct {
	NodeProperties         []TypeProperties
	RelationshipProperties []TypeProperties
	Patterns               []Pattern
}

// LoadSchema introspects labels, relationship types and their properties
func (c *Client) LoadSchema(ctx context.Context) (SchemaInfo, error) {
	var info SchemaInfo

	records, err := c.read(ctx, nodePropertiesQuery)
	if err != nil {
		return info, fmt.Errorf("node properties: %w", err)
	}
	info.NodeProperties = groupProperties(records, func(rec *neo4j.Record) string {
		labels, _ := rec.AsMap()["nodeLabels"].([]any)
		names := make([]string, 0, len(labels))
		for _, l := range labels {
			if s, ok := l.(string); ok {
				names = append(names, s)
			}
		}
		return strings.Join(names, ":")
	})

	records, err = c.read(ctx, relPropertiesQuery)
	if err != nil {
		return info, fmt.Errorf("relationship properties: %w", err)
	}
	info.RelationshipProperties = groupProperties(records, func(rec *neo4j.Record) string {
		relType, _ := rec.AsMap()["relType"].(string)
		return strings.Trim(strings.TrimPrefix(relType, ":"), "`")
	})

	records, err = c.read(ctx, patternsQuery)
	if err != nil {
		return info, fmt.Errorf("relationship patterns: %w", err)
	}
	for _, rec := range records {
		m := rec.AsMap()
		start, _ := m["start"].(string)
		rel, _ := m["rel"].(string)
		end, _ := m["end"].(string)
		info.Patterns = append(info.Patterns, Pattern{Start: start, Type: rel, End: end})
	}
	return info, nil
}

func groupProperties(records []*neo4j.Record, typeOf func(*neo4j.Record) string) []TypeProperties {
	index := make(map[string]int)
	var out []TypeProperties
	for _, rec := range records {
		name := typeOf(rec)
		if name == "" {
			continue
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, TypeProperties{Type: name})
		}

		m := rec.AsMap()
		prop, _ := m["propertyName"].(string)
		if prop == "" {
			continue
		}
		propType := ""
		if types, _ := m["propertyTypes"].([]any); len(types) > 0 {
			propType, _ = types[0].(string)
		}
		out[i].Properties = append(out[i].Properties, Property{Name: prop, Type: strings.ToUpper(propType)})
	}
	return out
}

// FormatSchema renders info as the text block the query prompts expect
func FormatSchema(info SchemaInfo) string {
	var b strings.Builder

	b.WriteString("Node properties:\n")
	writeTypeProperties(&b, info.NodeProperties)
	b.WriteString("Relationship properties:\n")
	writeTypeProperties(&b, info.RelationshipProperties)
	b.WriteString("The relationships:\n")

	patterns := make([]string, 0, len(info.Patterns))
	for _, p := range info.Patterns {
		patterns = append(patterns, fmt.Sprintf("(:%s)-[:%s]->(:%s)", p.Start, p.Type, p.End))
	}
	sort.Strings(patterns)
	for _, p := range patterns {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeTypeProperties(b *strings.Builder, types []TypeProperties) {
	sorted := append([]TypeProperties(nil), types...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Type < sorted[j].Type })
	for _, t := range sorted {
		if len(t.Properties) == 0 {
			continue
		}
		props := make([]string, 0, len(t.Properties))
		for _, p := range t.Properties {
			props = append(props, fmt.Sprintf("%s: %s", p.Name, p.Type))
		}
		fmt.Fprintf(b, "%s {%s}\n", t.Type, strings.Join(props, ", "))
	}
}

// SchemaLoader introspects the graph schema
type SchemaLoader interface {
	LoadSchema(ctx context.Context) (SchemaInfo, error)
}

// defaultSchemaLoadTimeout bounds one shared schema load
const defaultSchemaLoadTimeout = 30 * time.Second

// SchemaCache serves formatted schema text, refreshing it after ttl. A ttl of
// zero keeps the first successful load for the life of the process.
//
// Concurrent callers share one load. The load runs detached from any single
// caller's cancellation and is bounded by its own timeout; each caller stops
// waiting when its own context ends.
type SchemaCache struct {
	loader      SchemaLoader
	ttl         time.Duration
	loadTimeout time.Duration
	now         func() time.Time

	mu       sync.RWMutex
	text     string
	loadedAt time.Time
	group    singleflight.Group
}

var _ core.SchemaProvider = (*SchemaCache)(nil)

// NewSchemaCache creates a cache over loader
func NewSchemaCache(loader SchemaLoader, ttl time.Duration) *SchemaCache {
	return &SchemaCache{loader: loader, ttl: ttl, loadTimeout: defaultSchemaLoadTimeout, now: time.Now}
}

// Schema returns the cached schema text, loading it when missing or stale
func (s *SchemaCache) Schema(ctx context.Context) (string, error) {
	s.mu.RLock()
	text, fresh := s.text, s.fresh()
	s.mu.RUnlock()
	if fresh {
		return text, nil
	}

	ch := s.group.DoChan("schema", func() (any, error) {
		return s.load(ctx)
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("load schema: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", fmt.Errorf("load schema: %w", res.Err)
		}
		return res.Val.(string), nil
	}
}

// load refreshes the cached text. It keeps ctx values such as the logger but
// not its deadline or cancellation.
func (s *SchemaCache) load(ctx context.Context) (string, error) {
	s.mu.RLock()
	text, fresh := s.text, s.fresh()
	s.mu.RUnlock()
	if fresh {
		return text, nil
	}

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
	defer cancel()

	info, err := s.loader.LoadSchema(loadCtx)
	if err != nil {
		metrics.SchemaRefreshes.WithLabelValues("error").Inc()
		return "", err
	}
	text = FormatSchema(info)

	s.mu.Lock()
	s.text = text
	s.loadedAt = s.now()
	s.mu.Unlock()

	metrics.SchemaRefreshes.WithLabelValues("ok").Inc()
	zerolog.Ctx(ctx).Debug().Int("node_types", len(info.NodeProperties)).Int("patterns", len(info.Patterns)).Msg("Schema refreshed")
	return text, nil
}

// Invalidate forces the next Schema call to reload
func (s *SchemaCache) Invalidate() {
	s.mu.Lock()
	s.loadedAt = time.Time{}
	s.text = ""
	s.mu.Unlock()
}

func (s *SchemaCache) fresh() bool {
	if s.loadedAt.IsZero() {
		return false
	}
	return s.ttl <= 0 || s.now().Sub(s.loadedAt) < s.ttl
}
