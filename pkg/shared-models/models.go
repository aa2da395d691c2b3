package datamodels

import (
	"github.com/google/uuid"
)

// RunRequest asks the daemon to run a stored profile.
type RunRequest struct {
	Profile    string    `json:"profile" validate:"required"`
	Reverse    bool      `json:"reverse"`
	RequestUID uuid.UUID `json:"requestUid"`
}

type RunResponse struct {
	RunID uuid.UUID `json:"runId"`
}

type CancelResponse struct {
	Dropped int  `json:"dropped"`
	Aborted bool `json:"aborted"`
}

// QueuedCommand is one pending or active command as reported by Status.
type QueuedCommand struct {
	RunID   uuid.UUID `json:"runId"`
	Command string    `json:"command"`
}

type Status struct {
	State   string          `json:"state"`
	Active  *QueuedCommand  `json:"active,omitempty"`
	Pending []QueuedCommand `json:"pending"`
}

type ProfileSummary struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Commands []string `json:"commands"`
}
