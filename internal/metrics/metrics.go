// Package metrics collects and exposes workerexec runtime observability
// data.
//
// # Design rationale
//
// Two metric stores coexist in this package, following the teacher's
// original split:
//
//  1. The in-process Metrics struct (atomic counters) for a lightweight
//     JSON debug endpoint that works with no external dependency.
//  2. The Prometheus registry (prometheus.go) for scraping by external
//     monitoring systems, with the metric names spec.md §6 requires.
//
// # Concurrency — hot path
//
// Every Record* method here is called from the invocation path and must
// stay allocation-free; all fields are accessed through sync/atomic rather
// than a mutex.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics collects in-process counters. They are separate from the
// Prometheus collectors in prometheus.go; nothing copies one to the other.
type Metrics struct {
	InvocationsTotal     atomic.Int64
	InvocationsSucceeded atomic.Int64
	InvocationsFailed    atomic.Int64

	WorkersCreated atomic.Int64
	WorkersResumed atomic.Int64

	OplogCommits      atomic.Int64
	OplogCommitBytes  atomic.Int64
	OplogExternalized atomic.Int64

	GRPCSuccess atomic.Int64
	GRPCFailure atomic.Int64

	AssignedShards atomic.Int64
}

// New returns an empty in-process Metrics collector.
func New() *Metrics {
	return &Metrics{}
}

// RecordInvocation updates the in-process invocation counters. outcome
// should be "success" or "failure", matching the label values used on the
// invocation_total Prometheus counter.
func (m *Metrics) RecordInvocation(outcome string) {
	m.InvocationsTotal.Add(1)
	if outcome == "success" {
		m.InvocationsSucceeded.Add(1)
	} else {
		m.InvocationsFailed.Add(1)
	}
}

func (m *Metrics) RecordWorkerCreated() { m.WorkersCreated.Add(1) }
func (m *Metrics) RecordWorkerResumed() { m.WorkersResumed.Add(1) }

func (m *Metrics) RecordOplogCommit(bytes int) {
	m.OplogCommits.Add(1)
	m.OplogCommitBytes.Add(int64(bytes))
}

func (m *Metrics) RecordOplogPayloadExternalized() { m.OplogExternalized.Add(1) }

func (m *Metrics) RecordGRPCCall(success bool) {
	if success {
		m.GRPCSuccess.Add(1)
	} else {
		m.GRPCFailure.Add(1)
	}
}

func (m *Metrics) SetAssignedShards(n int) { m.AssignedShards.Store(int64(n)) }

// snapshot is the JSON-serializable view Handler renders.
type snapshot struct {
	InvocationsTotal     int64 `json:"invocations_total"`
	InvocationsSucceeded int64 `json:"invocations_succeeded"`
	InvocationsFailed    int64 `json:"invocations_failed"`
	WorkersCreated       int64 `json:"workers_created"`
	WorkersResumed       int64 `json:"workers_resumed"`
	OplogCommits         int64 `json:"oplog_commits"`
	OplogCommitBytes     int64 `json:"oplog_commit_bytes"`
	OplogExternalized    int64 `json:"oplog_externalized"`
	GRPCSuccess          int64 `json:"grpc_success"`
	GRPCFailure          int64 `json:"grpc_failure"`
	AssignedShards       int64 `json:"assigned_shards"`
}

// Handler serves a JSON snapshot of the in-process counters.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := snapshot{
			InvocationsTotal:     m.InvocationsTotal.Load(),
			InvocationsSucceeded: m.InvocationsSucceeded.Load(),
			InvocationsFailed:    m.InvocationsFailed.Load(),
			WorkersCreated:       m.WorkersCreated.Load(),
			WorkersResumed:       m.WorkersResumed.Load(),
			OplogCommits:         m.OplogCommits.Load(),
			OplogCommitBytes:     m.OplogCommitBytes.Load(),
			OplogExternalized:    m.OplogExternalized.Load(),
			GRPCSuccess:          m.GRPCSuccess.Load(),
			GRPCFailure:          m.GRPCFailure.Load(),
			AssignedShards:       m.AssignedShards.Load(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})
}
