package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harun/toolhost/pkg/loader"
	"github.com/harun/toolhost/pkg/tool"
)

// maxBodyBytes caps execute request bodies.
const maxBodyBytes = 1 << 20

// ExecuteRequest is the body of POST /api/tools/{tool}/{method}.
type ExecuteRequest struct {
	Params    map[string]any `json:"params"`
	TimeoutMS int64          `json:"timeout_ms,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v before committing status, so a value that cannot be
// encoded becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(errorResponse{Error: "failed to encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusForKind maps a failed Result onto an HTTP status.
func statusForKind(kind tool.ErrorKind) int {
	switch kind {
	case tool.KindNotFound:
		return http.StatusNotFound
	case tool.KindValidation:
		return http.StatusBadRequest
	case tool.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"tools":   len(s.registry.AllStatus()),
		"healthy": len(s.registry.Healthy()),
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.registry.AllStatus()})
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "tool")
	status, ok := s.registry.Status(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Tool '"+name+"' not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	toolName := chi.URLParam(r, "tool")
	method := chi.URLParam(r, "method")

	var req ExecuteRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}
	if req.TimeoutMS < 0 {
		writeError(w, http.StatusBadRequest, "timeout_ms cannot be negative")
		return
	}

	result := s.executor.Execute(r.Context(), toolName, method, req.Params, time.Duration(req.TimeoutMS)*time.Millisecond)

	status := http.StatusOK
	if !result.Success {
		status = statusForKind(result.Kind)
	}
	writeJSON(w, status, result)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil {
		writeError(w, http.StatusNotImplemented, "reload is not available")
		return
	}

	name := chi.URLParam(r, "tool")
	err := s.reloader.ReloadTool(r.Context(), name)
	s.mcp.drop(name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, loader.ErrCandidateNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	status, _ := s.registry.Status(name)
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		writeError(w, http.StatusNotImplemented, "health checks are not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": s.sweeper.RunNow(r.Context())})
}
