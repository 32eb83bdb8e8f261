package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecordInvocationUpdatesCounters(t *testing.T) {
	m := New()
	m.RecordInvocation("success")
	m.RecordInvocation("failure")
	m.RecordInvocation("success")

	if got := m.InvocationsTotal.Load(); got != 3 {
		t.Fatalf("expected 3 total invocations, got %d", got)
	}
	if got := m.InvocationsSucceeded.Load(); got != 2 {
		t.Fatalf("expected 2 succeeded, got %d", got)
	}
	if got := m.InvocationsFailed.Load(); got != 1 {
		t.Fatalf("expected 1 failed, got %d", got)
	}
}

func TestRecordOplogCommitAccumulatesBytes(t *testing.T) {
	m := New()
	m.RecordOplogCommit(100)
	m.RecordOplogCommit(50)

	if got := m.OplogCommits.Load(); got != 2 {
		t.Fatalf("expected 2 commits, got %d", got)
	}
	if got := m.OplogCommitBytes.Load(); got != 150 {
		t.Fatalf("expected 150 committed bytes, got %d", got)
	}
}

func TestHandlerServesJSONSnapshot(t *testing.T) {
	m := New()
	m.RecordWorkerCreated()
	m.SetAssignedShards(4)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if snap.WorkersCreated != 1 {
		t.Fatalf("expected workers_created 1, got %d", snap.WorkersCreated)
	}
	if snap.AssignedShards != 4 {
		t.Fatalf("expected assigned_shards 4, got %d", snap.AssignedShards)
	}
}

func TestInitPrometheusRegistersExpectedMetricNames(t *testing.T) {
	m := InitPrometheus("workerexec_test", nil)
	t.Cleanup(func() { promMetrics = nil })

	m.ObserveCreateInstance(0.01)
	m.RecordInvocation("await", "success", 42)
	m.RecordHostFunctionCall("wasi:clocks/wall-clock", "now")
	m.SetAssignedShardCount(3)
	m.RecordOplogCommit(1, 256)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from prometheus handler, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"workerexec_test_create_instance_seconds",
		"workerexec_test_invocation_total",
		"workerexec_test_host_function_call_total",
		"workerexec_test_assigned_shard_count",
		"workerexec_test_oplog_commit_total",
	} {
		if !contains(body, want) {
			t.Errorf("expected scraped output to contain %q", want)
		}
	}
}

func TestPrometheusReturnsNilBeforeInit(t *testing.T) {
	promMetrics = nil
	if got := Prometheus(); got != nil {
		t.Fatalf("expected Prometheus() to be nil before InitPrometheus, got %v", got)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
