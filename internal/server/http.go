package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lettin/lettin/internal/discovery"
	"github.com/lettin/lettin/internal/logging"
	"github.com/lettin/lettin/internal/version"
	"go.uber.org/zap"
)

// GatewaysResponse is the body of GET /api/gateways and of WebSocket result messages
type GatewaysResponse struct {
	Type      string               `json:"type,omitempty"`
	State     string               `json:"state"`
	Published bool                 `json:"published"` // false until the first cycle completes
	Count     int                  `json:"count"`
	Gateways  []*discovery.Gateway `json:"gateways"`
	Timestamp time.Time            `json:"timestamp"`
}

func (s *Server) gatewaysResponse(result []*discovery.Gateway, published bool) GatewaysResponse {
	if result == nil {
		result = []*discovery.Gateway{}
	}
	return GatewaysResponse{
		State:     s.session.State().String(),
		Published: published,
		Count:     len(result),
		Gateways:  result,
		Timestamp: time.Now(),
	}
}

// HandleDiscover starts a discovery cycle; the result arrives on /ws and /api/gateways
func (s *Server) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	s.session.StartDiscovery()
	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "discovering",
		"window": s.session.Config().Window.String(),
	})
}

// HandleGateways returns the latest published result
func (s *Server) HandleGateways(w http.ResponseWriter, r *http.Request) {
	result, published := s.session.Results().Latest()
	s.respondJSON(w, http.StatusOK, s.gatewaysResponse(result, published))
}

// HandleState reports whether a cycle is in progress
func (s *Server) HandleState(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"state": s.session.State().String(),
	})
}

// HandleVersion reports the build of the running server
func (s *Server) HandleVersion(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, version.Get())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warn("Failed to write response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
