// Package api exposes the Handler over HTTP: ingest, query, episode,
// concept-graph, and audit-log endpoints. Grounded on the teacher's
// mux-based Server (internal/api/server.go in the pack): same
// writeJSON helper, same method-checked handler functions, same
// http.ServeMux router construction.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"cortex-engine/internal/audit"
	"cortex-engine/internal/cortexerr"
	"cortex-engine/internal/handler"
	"cortex-engine/internal/types"
)

// Server wraps a Handler and an optional audit log with an HTTP
// surface. Audit may be nil, in which case /audit/recent responds
// with an empty list and queries are not recorded.
type Server struct {
	handler     *handler.Handler
	audit       *audit.Log
	queryConfig handler.QueryConfig

	ingestMetadataSchema *jsonschema.Resolved
}

// IngestMetadata is the shape validated against ingest requests'
// opaque metadata field before it reaches the vector index.
type IngestMetadata struct {
	Namespace string `json:"namespace,omitempty" jsonschema:"optional namespace tag"`
	Source    string `json:"source,omitempty" jsonschema:"optional source label"`
}

// NewServer builds a Server. If auditLog is nil, queries are not
// recorded. queryConfig controls which subsystems /query exercises on
// every request.
func NewServer(h *handler.Handler, auditLog *audit.Log, queryConfig handler.QueryConfig) (*Server, error) {
	schema, err := jsonschema.For[IngestMetadata](nil)
	if err != nil {
		return nil, err
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, err
	}
	return &Server{handler: h, audit: auditLog, queryConfig: queryConfig, ingestMetadataSchema: resolved}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"time_utc": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"index":    s.handler.Index.Statistics(),
		"episodes": s.handler.Episodes.Size(),
		"nodes":    s.handler.Graph.NumNodes(),
		"edges":    s.handler.Graph.NumEdges(),
	})
}

type ingestRequest struct {
	DocID     string          `json:"doc_id"`
	Embedding types.Embedding `json:"embedding"`
	Content   string          `json:"content"`
	Metadata  types.Metadata  `json:"metadata"`
}

func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Metadata != nil {
		meta := IngestMetadata{}
		if ns, ok := req.Metadata["namespace"].(string); ok {
			meta.Namespace = ns
		}
		if src, ok := req.Metadata["source"].(string); ok {
			meta.Source = src
		}
		if err := s.ingestMetadataSchema.Validate(meta); err != nil {
			http.Error(w, "invalid metadata: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	inserted, err := s.handler.IndexDocument(req.DocID, req.Embedding, req.Content, req.Metadata)
	if err != nil {
		log.Printf("[index] doc_id=%s failed: %v", req.DocID, err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"inserted": inserted, "doc_id": req.DocID})
}

type queryRequest struct {
	Query     string          `json:"query"`
	Embedding types.Embedding `json:"embedding"`
}

func (s *Server) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Embedding) == 0 {
		http.Error(w, "embedding is required", http.StatusBadRequest)
		return
	}

	resp := s.handler.ProcessQuery(req.Query, req.Embedding, s.queryConfig)

	if s.audit != nil {
		if _, err := s.audit.Record(req.Query, resp.ResponseText, resp.EvidenceScore, resp.ReasoningSteps, time.Now().UnixMilli()); err != nil {
			log.Printf("[query] audit record failed: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type addEpisodeRequest struct {
	Query     string            `json:"query"`
	Response  string            `json:"response"`
	Embedding types.Embedding   `json:"embedding"`
	Metadata  map[string]string `json:"metadata"`
}

func (s *Server) HandleEpisodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req addEpisodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.handler.AddEpisode(req.Query, req.Response, req.Embedding, req.Metadata)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type addNodeRequest struct {
	Name      string          `json:"name"`
	Embedding types.Embedding `json:"embedding,omitempty"`
}

func (s *Server) HandleGraphNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req addNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.handler.Graph.AddNode(req.Name, req.Embedding)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "num_nodes": s.handler.Graph.NumNodes()})
}

type addEdgeRequest struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float32 `json:"weight"`
}

func (s *Server) HandleGraphEdges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req addEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.handler.Graph.AddEdge(req.Source, req.Target, req.Weight)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "num_edges": s.handler.Graph.NumEdges()})
}

func (s *Server) HandleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"records": []any{}})
		return
	}
	records, err := s.audit.Recent(20)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": cortexerr.Wrap(cortexerr.PersistenceError, "failed to read audit log", err).Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/stats", s.HandleStats)
	mux.HandleFunc("/index", s.HandleIndex)
	mux.HandleFunc("/query", s.HandleQuery)
	mux.HandleFunc("/episodes", s.HandleEpisodes)
	mux.HandleFunc("/graph/nodes", s.HandleGraphNodes)
	mux.HandleFunc("/graph/edges", s.HandleGraphEdges)
	mux.HandleFunc("/audit/recent", s.HandleAuditRecent)
	return mux
}

// Start blocks serving the router on addr.
func (s *Server) Start(addr string) error {
	log.Printf("cortex-engine API listening on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}
