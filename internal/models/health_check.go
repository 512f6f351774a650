package models

import "time"

type HealthCheck struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Queue     *QueueStats       `json:"queue,omitempty"`
}

// QueueStats is a point-in-time snapshot of the job queue.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Max        int `json:"max"`
	Workers    int `json:"workers"`
}
