package workflow

import "time"

// StatusSummary represents lightweight worker diagnostics.
type StatusSummary struct {
	Running   bool      `json:"running"`
	Worker    string    `json:"worker"`
	StartedAt time.Time `json:"started_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	LastRunID string    `json:"last_run_id,omitempty"`
	Processed int       `json:"processed"`
}

// Status returns the latest worker information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := StatusSummary{
		Running:   m.running,
		Worker:    m.workerID,
		StartedAt: m.startedAt,
		LastRunID: m.lastRunID,
		Processed: m.processed,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) recordRun(runID string, err error) {
	m.mu.Lock()
	m.lastRunID = runID
	m.processed++
	if err != nil {
		m.lastErr = err
	}
	m.mu.Unlock()
}
