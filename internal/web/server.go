package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/impact"
	"github.com/zheng/sprocmap/internal/storage"
)

// Server serves saved runs as JSON
type Server struct {
	db     *storage.DB
	port   int
	logger *slog.Logger
}

// NewServer creates a new web server
func NewServer(db *storage.DB, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{db: db, port: port, logger: logger}
}

// API response types
type RunData struct {
	Run       *storage.Run `json:"run"`
	Tree      *graph.Node  `json:"tree"`
	Functions []string     `json:"functions,omitempty"`
}

type GraphData struct {
	Nodes []NodeData      `json:"nodes"`
	Edges []graph.Edge    `json:"edges"`
	Stats graph.TreeStats `json:"stats"`
}

type NodeData struct {
	ID    string `json:"id"` // 文件名，与边的 from/to 对应
	Label string `json:"label"`
	File  string `json:"file"`
	Depth int    `json:"depth"` // 首次出现的深度
}

type StatsData struct {
	RunCount  int64 `json:"runCount"`
	NodeCount int64 `json:"nodeCount"`
}

// Handler returns the API router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/runs", s.handleRuns)
		r.Route("/runs/{id}", func(r chi.Router) {
			r.Get("/", s.handleRun)
			r.Get("/graph", s.handleGraph)
			r.Get("/impact/{procedure}", s.handleImpact)
		})
	})

	return r
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web API started", "url", fmt.Sprintf("http://localhost:%d/api/runs", s.port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// handleRuns returns every saved run, newest first
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.ListRuns()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*storage.Run{}
	}
	writeJSON(w, runs)
}

// handleRun returns one run with its tree and function list
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}

	run, err := s.db.GetRun(runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tree, err := s.db.LoadTree(runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	functions, err := s.db.GetFunctions(runID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, RunData{Run: run, Tree: tree, Functions: functions})
}

// handleGraph returns the distinct procedures and edges of a run
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}

	tree, err := s.db.LoadTree(runID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	data := GraphData{
		Nodes: treeNodes(tree),
		Edges: graph.Edges(tree),
		Stats: graph.Stats(tree),
	}
	if data.Edges == nil {
		data.Edges = []graph.Edge{}
	}
	writeJSON(w, data)
}

// handleImpact returns impact analysis for a procedure in a run
func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}

	report, err := impact.NewAnalyzer(s.db).AnalyzeImpact(runID, chi.URLParam(r, "procedure"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, report)
}

// handleStats returns database statistics
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	runCount, nodeCount, err := s.db.GetStats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, StatsData{RunCount: runCount, NodeCount: nodeCount})
}

// Helper functions
func runIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	runID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || runID <= 0 {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return 0, false
	}
	return runID, true
}

// treeNodes lists each procedure once, in pre-order, skipping cycle closures
func treeNodes(root *graph.Node) []NodeData {
	nodes := []NodeData{}
	seen := make(map[string]bool)
	graph.Walk(root, func(n *graph.Node) {
		key := strings.ToLower(n.Name())
		if n.CycleClosure || seen[key] {
			return
		}
		seen[key] = true
		nodes = append(nodes, NodeData{
			ID:    n.Name(),
			Label: n.Procedure(),
			File:  n.FilePath,
			Depth: n.Depth(),
		})
	})
	return nodes
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrRunNotFound), errors.Is(err, impact.ErrProcedureNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.logger.Error("request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
