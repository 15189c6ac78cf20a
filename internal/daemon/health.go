package daemon

import (
	"context"
	"time"

	"lofi/internal/api"
	"lofi/internal/logging"
)

const probeTimeout = 3 * time.Second

// Health probes the database, redis when configured, and stage readiness
// for roles that execute runs. ready is false when an infrastructure probe
// fails; unready stages only degrade the report.
func (d *Daemon) Health(ctx context.Context) (report api.HealthResponse, ready bool) {
	ready = true
	report.Checks = append(report.Checks, d.probe(ctx, "database", d.deps.Store.Ping))
	if d.deps.RedisPing != nil {
		report.Checks = append(report.Checks, d.probe(ctx, "redis", d.deps.RedisPing))
	}
	for _, check := range report.Checks {
		if !check.Ready {
			ready = false
		}
	}

	degraded := !ready
	if d.role.RunsWorker() {
		report.Stages = api.FromStageHealth(d.deps.Orchestrator.Health(ctx))
		for _, stage := range report.Stages {
			if !stage.Ready {
				degraded = true
			}
		}
	}
	report.Status = api.HealthOK
	if degraded {
		report.Status = api.HealthDegraded
	}
	return report, ready
}

func (d *Daemon) probe(ctx context.Context, name string, ping func(context.Context) error) api.Check {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := ping(probeCtx); err != nil {
		d.logger.Warn("health probe failed",
			logging.String("check", name),
			logging.Error(err),
		)
		return api.Check{Name: name, Ready: false, Detail: err.Error()}
	}
	return api.Check{Name: name, Ready: true}
}
