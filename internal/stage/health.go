package stage

// Health summarizes the readiness of a pipeline stage.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Label renders the health state for tables and status output.
func (h Health) Label() string {
	if h.Ready {
		return "ready"
	}
	if h.Detail != "" {
		return "not ready: " + h.Detail
	}
	return "not ready"
}
