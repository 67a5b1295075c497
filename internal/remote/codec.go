package remote

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"budgetsync/internal/core"
)

// Encode converts a typed value into document data. The id field is kept
// out of the body since it is the document key.
func Encode(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	delete(m, "id")
	return m, nil
}

// Decode fills out from a document. The document id wins over any id field
// in the body.
func Decode(doc Document, out any) error {
	data := Normalize(doc.Data)
	if data == nil {
		data = map[string]any{}
	}
	data["id"] = doc.ID
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return nil
}

// DecodeAll decodes a snapshot, stopping at the first malformed document.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := Decode(d, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Normalize returns a deep copy of data with native timestamps rendered as
// RFC 3339 strings.
func Normalize(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return core.FormatTimestamp(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return core.FormatTimestamp(*t)
	case map[string]any:
		return Normalize(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

// SortDocuments applies the collection's scan order in place.
func SortDocuments(coll Collection, docs []Document) {
	if coll != Transactions {
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return core.IsNewer(stringField(docs[i].Data, "createdAt"), stringField(docs[j].Data, "createdAt"))
	})
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case time.Time:
		return core.FormatTimestamp(v)
	default:
		return ""
	}
}
