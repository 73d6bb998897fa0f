package graphdb

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// toPlain converts driver values into maps, slices and scalars that encode
// cleanly as prompt context. Nodes become their properties; relationships keep
// their type under "_type".
func toPlain(v any) any {
	switch val := v.(type) {
	case neo4j.Node:
		return plainMap(val.Props)
	case neo4j.Relationship:
		m := plainMap(val.Props)
		m["_type"] = val.Type
		return m
	case neo4j.Path:
		out := make([]any, 0, len(val.Nodes)+len(val.Relationships))
		for i, n := range val.Nodes {
			out = append(out, toPlain(n))
			if i < len(val.Relationships) {
				out = append(out, toPlain(val.Relationships[i]))
			}
		}
		return out
	case neo4j.Date:
		return time.Time(val).Format(time.DateOnly)
	case neo4j.LocalDateTime:
		return time.Time(val).Format("2006-01-02T15:04:05")
	case neo4j.LocalTime:
		return time.Time(val).Format(time.TimeOnly)
	case neo4j.Time:
		return time.Time(val).Format("15:04:05Z07:00")
	case time.Time:
		return val.Format(time.RFC3339)
	case neo4j.Duration:
		return val.String()
	case neo4j.Point2D:
		return map[string]any{"x": val.X, "y": val.Y, "srid": val.SpatialRefId}
	case neo4j.Point3D:
		return map[string]any{"x": val.X, "y": val.Y, "z": val.Z, "srid": val.SpatialRefId}
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toPlain(item)
		}
		return out
	case map[string]any:
		return plainMap(val)
	}
	return v
}

func plainMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = toPlain(v)
	}
	return out
}
