package pipeline

import (
	"context"

	"vidflow/internal/stage"
)

// StatusSummary represents lightweight orchestrator diagnostics.
type StatusSummary struct {
	Accepting   bool                    `json:"accepting"`
	InFlight    int                     `json:"in_flight"`
	Timeout     string                  `json:"timeout"`
	Stages      []string                `json:"stages"`
	Finished    map[Status]int64        `json:"finished"`
	LastError   string                  `json:"last_error,omitempty"`
	LastExec    *Execution              `json:"last_execution,omitempty"`
	StageHealth map[string]stage.Health `json:"stage_health"`
}

// Status returns the current orchestrator state and calls each stage health check.
func (o *Orchestrator) Status(ctx context.Context) StatusSummary {
	o.mu.RLock()
	summary := StatusSummary{
		Accepting: !o.closed,
		InFlight:  len(o.active),
		Timeout:   o.timeout.String(),
		Stages:    o.def.Names(),
		Finished:  make(map[Status]int64, len(o.counts)),
		LastError: o.lastErr,
	}
	for status, count := range o.counts {
		summary.Finished[status] = count
	}
	if o.lastExec != nil {
		last := o.lastExec.Snapshot()
		summary.LastExec = &last
	}
	o.mu.RUnlock()

	summary.StageHealth = make(map[string]stage.Health, o.def.Len())
	for i, handler := range o.def.stages {
		summary.StageHealth[o.def.names[i]] = handler.HealthCheck(ctx)
	}
	return summary
}
