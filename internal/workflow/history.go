package workflow

import (
	"sync"
	"time"
)

// ExecutionRecord is the retained summary of a finished run.
type ExecutionRecord struct {
	ExecutionID string    `json:"execution_id"`
	Workflow    string    `json:"workflow"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Steps       int       `json:"steps"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// Stats aggregates every run since startup.
type Stats struct {
	TotalExecutions   int            `json:"total_executions"`
	Completed         int            `json:"completed"`
	Failed            int            `json:"failed"`
	SuccessRate       float64        `json:"success_rate"`
	AverageDurationMS float64        `json:"average_duration_ms"`
	ByWorkflow        map[string]int `json:"by_workflow"`
	Workflows         int            `json:"registered_workflows"`
	Capabilities      int            `json:"registered_capabilities"`
}

// history keeps a bounded ring of recent runs plus running totals.
type history struct {
	mu         sync.Mutex
	size       int
	ring       []ExecutionRecord
	next       int
	total      int
	completed  int
	failed     int
	totalDur   time.Duration
	byWorkflow map[string]int
}

func newHistory(size int) *history {
	if size <= 0 {
		size = 1
	}
	return &history{
		size:       size,
		ring:       make([]ExecutionRecord, 0, size),
		byWorkflow: make(map[string]int),
	}
}

func (h *history) record(r *Result) {
	rec := ExecutionRecord{
		ExecutionID: r.ExecutionID,
		Workflow:    r.Workflow,
		Status:      r.Status,
		Error:       r.Error,
		Steps:       len(r.Order),
		StartedAt:   r.StartedAt,
		DurationMS:  r.Duration.Milliseconds(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.ring) < h.size {
		h.ring = append(h.ring, rec)
	} else {
		h.ring[h.next] = rec
	}
	h.next = (h.next + 1) % h.size

	h.total++
	h.totalDur += r.Duration
	h.byWorkflow[r.Workflow]++
	if r.Status == StatusCompleted {
		h.completed++
	} else {
		h.failed++
	}
}

// recent returns up to limit records, newest first.
func (h *history) recent(limit int) []ExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.ring)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ExecutionRecord, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, h.ring[(h.next-1-i+h.size)%h.size])
	}
	return out
}

func (h *history) stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Stats{
		TotalExecutions: h.total,
		Completed:       h.completed,
		Failed:          h.failed,
		ByWorkflow:      make(map[string]int, len(h.byWorkflow)),
	}
	for k, v := range h.byWorkflow {
		s.ByWorkflow[k] = v
	}
	if h.total > 0 {
		s.SuccessRate = float64(h.completed) / float64(h.total)
		s.AverageDurationMS = float64(h.totalDur.Milliseconds()) / float64(h.total)
	}
	return s
}
