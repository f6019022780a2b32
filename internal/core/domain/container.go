package domain

import "time"

// Status is the last confirmed runtime state of a container.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusRemoved Status = "removed"
)

// ContainerRecord is the persisted ownership entry for one runtime container.
type ContainerRecord struct {
	ID          string    `json:"id"`
	ContainerID string    `json:"container_id"`
	Image       string    `json:"container_name"`
	OwnerID     string    `json:"user_id"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusFromState maps a runtime state string ("running", "exited", "created",
// "paused", ...) onto a record status.
func StatusFromState(state string) Status {
	switch state {
	case "running":
		return StatusRunning
	case "created":
		return StatusCreated
	default:
		return StatusExited
	}
}
