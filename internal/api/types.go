package api

import "time"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SessionPayload describes the in-flight pipeline session.
type SessionPayload struct {
	ID         string  `json:"id"`
	Stage      string  `json:"stage"`
	Asset      string  `json:"asset,omitempty"`
	Index      int     `json:"index"`
	Count      int     `json:"count"`
	Bytes      uint64  `json:"bytes"`
	TotalBytes uint64  `json:"totalBytes"`
	Percent    float64 `json:"percent"`
	Message    string  `json:"message,omitempty"`
	Paths      int     `json:"paths"`
	Remote     string  `json:"remote,omitempty"`
	StartedAt  string  `json:"startedAt,omitempty"`
}

// PipelineStatus summarizes the orchestrator.
type PipelineStatus struct {
	Running   bool            `json:"running"`
	Queued    int             `json:"queued"`
	Rate      float64         `json:"bytesPerSecond"`
	LastError string          `json:"lastError,omitempty"`
	Session   *SessionPayload `json:"session,omitempty"`
}

// ConfirmStatus describes the confirmation gate.
type ConfirmStatus struct {
	Pending        bool   `json:"pending"`
	EstimatedBytes uint64 `json:"estimatedBytes,omitempty"`
	MB             string `json:"mb,omitempty"`
}

// SceneStatus mirrors the scene machine snapshot.
type SceneStatus struct {
	State          string  `json:"state"`
	Current        string  `json:"current,omitempty"`
	Next           string  `json:"next,omitempty"`
	PendingLoaders int     `json:"pendingLoaders"`
	Progress       float64 `json:"progress"`
}

// StageHealth mirrors readiness reporting for collaborators.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// StatusResponse is the payload of GET /api/status.
type StatusResponse struct {
	Pipeline PipelineStatus `json:"pipeline"`
	Confirm  ConfirmStatus  `json:"confirm"`
	Scene    *SceneStatus   `json:"scene,omitempty"`
	Health   []StageHealth  `json:"health,omitempty"`
}

// ConfirmResponse is the payload of the approve and decline endpoints.
type ConfirmResponse struct {
	Resolved bool `json:"resolved"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
