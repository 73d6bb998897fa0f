package graphdb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSchema() SchemaInfo {
	return SchemaInfo{
		NodeProperties: []TypeProperties{
			{Type: "Worker", Properties: []Property{{Name: "name", Type: "STRING"}, {Name: "title", Type: "STRING"}}},
			{Type: "Course", Properties: []Property{{Name: "code", Type: "STRING"}, {Name: "ects", Type: "INTEGER"}}},
			{Type: "Empty"},
		},
		RelationshipProperties: []TypeProperties{
			{Type: "TEACHES", Properties: []Property{{Name: "semester", Type: "STRING"}}},
		},
		Patterns: []Pattern{
			{Start: "Worker", Type: "TEACHES", End: "Course"},
			{Start: "Course", Type: "BELONGS_TO", End: "Faculty"},
		},
	}
}

func TestFormatSchema(t *testing.T) {
	want := `Node properties:
Course {code: STRING, ects: INTEGER}
Worker {name: STRING, title: STRING}
Relationship properties:
TEACHES {semester: STRING}
The relationships:
(:Course)-[:BELONGS_TO]->(:Faculty)
(:Worker)-[:TEACHES]->(:Course)`

	assert.Equal(t, want, FormatSchema(sampleSchema()))
}

func TestFormatSchemaEmpty(t *testing.T) {
	assert.Equal(t, "Node properties:\nRelationship properties:\nThe relationships:", FormatSchema(SchemaInfo{}))
}

type fakeLoader struct {
	calls atomic.Int32
	err   error
	wait  chan struct{}
}

func (f *fakeLoader) LoadSchema(ctx context.Context) (SchemaInfo, error) {
	f.calls.Add(1)
	if f.wait != nil {
		<-f.wait
	}
	if err := ctx.Err(); err != nil {
		return SchemaInfo{}, err
	}
	if f.err != nil {
		return SchemaInfo{}, f.err
	}
	return sampleSchema(), nil
}

func TestSchemaCacheTTL(t *testing.T) {
	loader := &fakeLoader{}
	cache := NewSchemaCache(loader, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	text, err := cache.Schema(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "(:Worker)-[:TEACHES]->(:Course)")

	_, err = cache.Schema(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, loader.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err = cache.Schema(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, loader.calls.Load())

	cache.Invalidate()
	_, err = cache.Schema(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, loader.calls.Load())
}

func TestSchemaCacheZeroTTLNeverExpires(t *testing.T) {
	loader := &fakeLoader{}
	cache := NewSchemaCache(loader, 0)
	now := time.Now()
	cache.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := cache.Schema(context.Background())
		require.NoError(t, err)
		now = now.Add(24 * time.Hour)
	}
	assert.EqualValues(t, 1, loader.calls.Load())
}

func TestSchemaCacheErrorNotCached(t *testing.T) {
	loader := &fakeLoader{err: errors.New("connection refused")}
	cache := NewSchemaCache(loader, time.Minute)

	_, err := cache.Schema(context.Background())
	assert.ErrorContains(t, err, "connection refused")

	loader.err = nil
	text, err := cache.Schema(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, text)
	assert.EqualValues(t, 2, loader.calls.Load())
}

func TestSchemaCacheCollapsesConcurrentLoads(t *testing.T) {
	loader := &fakeLoader{wait: make(chan struct{})}
	cache := NewSchemaCache(loader, time.Minute)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text, err := cache.Schema(context.Background())
			assert.NoError(t, err)
			results[i] = text
		}(i)
	}

	require.Eventually(t, func() bool { return loader.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(loader.wait)
	wg.Wait()

	assert.EqualValues(t, 1, loader.calls.Load())
	for _, text := range results {
		assert.Equal(t, results[0], text)
	}
}

func TestSchemaCacheLoadOutlivesCancelledCaller(t *testing.T) {
	loader := &fakeLoader{wait: make(chan struct{})}
	cache := NewSchemaCache(loader, time.Minute)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Schema(firstCtx)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return loader.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		text string
		err  error
	}
	second := make(chan result, 1)
	go func() {
		text, err := cache.Schema(context.Background())
		second <- result{text, err}
	}()

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting for the shared load")
	}

	close(loader.wait)
	res := <-second
	require.NoError(t, res.err)
	assert.Contains(t, res.text, "(:Worker)-[:TEACHES]->(:Course)")
	assert.EqualValues(t, 1, loader.calls.Load())

	text, err := cache.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.text, text)
	assert.EqualValues(t, 1, loader.calls.Load())
}

func TestSchemaCacheLoadTimeout(t *testing.T) {
	loader := &blockingLoader{}
	cache := NewSchemaCache(loader, time.Minute)
	cache.loadTimeout = 10 * time.Millisecond

	_, err := cache.Schema(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type blockingLoader struct{}

func (blockingLoader) LoadSchema(ctx context.Context) (SchemaInfo, error) {
	<-ctx.Done()
	return SchemaInfo{}, ctx.Err()
}
