package chroma_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type fakeRecord struct {
	id        string
	document  string
	metadata  map[string]any
	embedding []float32
}

type fakeCollection struct {
	id       string
	name     string
	metadata map[string]any
	records  []fakeRecord
}

// fakeChroma serves the subset of the Chroma v2 API the driver uses.
type fakeChroma struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	requests    []string
}

func newFakeChroma() *fakeChroma {
	return &fakeChroma{collections: make(map[string]*fakeCollection)}
}

const collectionsPrefix = "/api/v2/tenants/default_tenant/databases/default_database/collections"

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if r.URL.Path == "/api/v2/heartbeat" {
		writeJSON(w, map[string]int64{"nanosecond heartbeat": 1})
		return
	}
	if !strings.HasPrefix(r.URL.Path, collectionsPrefix) {
		http.NotFound(w, r)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, collectionsPrefix), "/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "" && r.Method == http.MethodGet:
		out := []map[string]any{}
		for _, c := range f.collections {
			out = append(out, map[string]any{"id": c.id, "name": c.name, "metadata": c.metadata})
		}
		writeJSON(w, out)

	case rest == "" && r.Method == http.MethodPost:
		var req struct {
			Name     string         `json:"name"`
			Metadata map[string]any `json:"metadata"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if _, ok := f.collections[req.Name]; ok {
			http.Error(w, "exists", http.StatusConflict)
			return
		}
		c := &fakeCollection{id: uuid.NewString(), name: req.Name, metadata: req.Metadata}
		f.collections[req.Name] = c
		writeJSON(w, map[string]any{"id": c.id, "name": c.name, "metadata": c.metadata})

	case len(parts) == 1 && r.Method == http.MethodGet:
		c, ok := f.collections[parts[0]]
		if !ok {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"id": c.id, "name": c.name, "metadata": c.metadata})

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if _, ok := f.collections[parts[0]]; !ok {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		delete(f.collections, parts[0])
		writeJSON(w, map[string]any{})

	case len(parts) == 2 && r.Method == http.MethodPost:
		c := f.byID(parts[0])
		if c == nil {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		switch parts[1] {
		case "add":
			f.add(w, r, c)
		case "get":
			f.get(w, r, c)
		case "delete":
			f.delete(w, r, c)
		default:
			http.NotFound(w, r)
		}

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeChroma) byID(id string) *fakeCollection {
	for _, c := range f.collections {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (f *fakeChroma) add(w http.ResponseWriter, r *http.Request, c *fakeCollection) {
	var req struct {
		IDs        []string         `json:"ids"`
		Embeddings [][]float32      `json:"embeddings"`
		Metadatas  []map[string]any `json:"metadatas"`
		Documents  []string         `json:"documents"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	for i, id := range req.IDs {
		c.records = append(c.records, fakeRecord{
			id:        id,
			document:  req.Documents[i],
			metadata:  req.Metadatas[i],
			embedding: req.Embeddings[i],
		})
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, true)
}

func matches(rec fakeRecord, ids []string, where map[string]any) bool {
	if len(ids) > 0 {
		found := false
		for _, id := range ids {
			found = found || id == rec.id
		}
		if !found {
			return false
		}
	}
	for field, cond := range where {
		ops, _ := cond.(map[string]any)
		if v, ok := ops["$eq"]; ok && rec.metadata[field] != v {
			return false
		}
		if v, ok := ops["$gte"]; ok {
			have, _ := rec.metadata[field].(float64)
			want, _ := v.(float64)
			if have < want {
				return false
			}
		}
	}
	return true
}

func (f *fakeChroma) get(w http.ResponseWriter, r *http.Request, c *fakeCollection) {
	var req struct {
		IDs     []string       `json:"ids"`
		Where   map[string]any `json:"where"`
		Limit   int            `json:"limit"`
		Offset  int            `json:"offset"`
		Include []string       `json:"include"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	var hits []fakeRecord
	for _, rec := range c.records {
		if matches(rec, req.IDs, req.Where) {
			hits = append(hits, rec)
		}
	}
	if req.Offset < len(hits) {
		hits = hits[req.Offset:]
	} else {
		hits = nil
	}
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}

	resp := map[string]any{}
	ids := []string{}
	docs := []string{}
	metas := []map[string]any{}
	embs := [][]float32{}
	for _, h := range hits {
		ids = append(ids, h.id)
		docs = append(docs, h.document)
		metas = append(metas, h.metadata)
		embs = append(embs, h.embedding)
	}
	resp["ids"] = ids
	for _, inc := range req.Include {
		switch inc {
		case "documents":
			resp["documents"] = docs
		case "metadatas":
			resp["metadatas"] = metas
		case "embeddings":
			resp["embeddings"] = embs
		}
	}
	writeJSON(w, resp)
}

func (f *fakeChroma) delete(w http.ResponseWriter, r *http.Request, c *fakeCollection) {
	var req struct {
		IDs []string `json:"ids"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	kept := c.records[:0]
	for _, rec := range c.records {
		if !matches(rec, req.IDs, nil) {
			kept = append(kept, rec)
		}
	}
	c.records = kept
	writeJSON(w, map[string]any{})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeChroma) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}
