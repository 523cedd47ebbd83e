package tasks

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Status is the lifecycle state of a backend task as seen by a poller
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	// StatusArtifactReady is never sent by the backend. The artifact poller
	// reports it when it infers that the result file is being served.
	StatusArtifactReady Status = "ARTIFACT_READY"
)

// ParseStatus maps a backend status string to a Status. Every value that is
// not a terminal state (STARTED, RETRY, PROGRESS, ...) is PENDING.
func ParseStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(StatusSuccess):
		return StatusSuccess
	case string(StatusFailure):
		return StatusFailure
	default:
		return StatusPending
	}
}

// Terminal reports whether no further polling is needed
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusArtifactReady
}

// Handle identifies one submitted task
type Handle struct {
	ID          string    `json:"task_id"`
	Status      Status    `json:"task_status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewHandle returns a pending handle for a freshly submitted task
func NewHandle(id string) Handle {
	return Handle{ID: id, Status: StatusPending, SubmittedAt: time.Now().UTC()}
}

// StatusResponse is the body of GET /tasks/{task_id}
type StatusResponse struct {
	TaskID     string          `json:"task_id"`
	TaskStatus string          `json:"task_status"`
	TaskResult json.RawMessage `json:"task_result"`
}

// CatchmentResult is the SUCCESS payload of a catchment delineation
type CatchmentResult struct {
	Northing          float64         `json:"northing"`
	Easting           float64         `json:"easting"`
	MaxOutletDistance float64         `json:"max_outlet_distance"`
	Geometry          json.RawMessage `json:"geometry"`
	RiverNetwork      json.RawMessage `json:"rivernetwork"`
}

// ArtifactRef points at a downloadable batch result
type ArtifactRef struct {
	TaskID string `json:"task_id"`
	URL    string `json:"url"`
}

// ArtifactPath is the backend path serving the result file of a task
func ArtifactPath(taskID string) string {
	return "file/" + taskID
}

// Layer is a named piece of map data handed to the renderer
type Layer struct {
	Name      string          `json:"name"`
	TaskID    string          `json:"task_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	URL       string          `json:"url,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LayerSet holds at most one layer per name. Replacing a layer drops the
// previous one with the same name.
type LayerSet struct {
	mu     sync.RWMutex
	order  []string
	layers map[string]Layer
}

func NewLayerSet() *LayerSet {
	return &LayerSet{layers: make(map[string]Layer)}
}

// ReplaceLayer removes any layer called layer.Name and adds layer on top
func (s *LayerSet) ReplaceLayer(layer Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.layers[layer.Name]; exists {
		for i, name := range s.order {
			if name == layer.Name {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	if layer.UpdatedAt.IsZero() {
		layer.UpdatedAt = time.Now().UTC()
	}
	s.layers[layer.Name] = layer
	s.order = append(s.order, layer.Name)
}

// Get returns the layer called name
func (s *LayerSet) Get(name string) (Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	layer, ok := s.layers[name]
	return layer, ok
}

// List returns the layers bottom to top
func (s *LayerSet) List() []Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Layer, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.layers[name])
	}
	return out
}
