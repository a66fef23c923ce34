package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Grid       GridSummary       `json:"grid"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Breakers   []BreakerStatus   `json:"breakers"`
	Flags      map[string]any    `json:"flags,omitempty"`
}

// SubsystemStatus represents the status of a subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// BreakerStatus represents the status of an outbound dependency guarded by a
// circuit breaker.
type BreakerStatus struct {
	Name                string       `json:"name"`
	Status              HealthStatus `json:"status"`
	State               string       `json:"state"`
	ConsecutiveFailures uint32       `json:"consecutiveFailures"`
	LastSuccessAt       *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *Timestamp   `json:"lastFailureAt,omitempty"`
	Message             *string      `json:"message,omitempty"`
}
