package stats

import (
	"testing"
	"time"
)

func TestRecordRequestTracksMinMax(t *testing.T) {
	s := New()
	s.RecordRequest(50*time.Millisecond, 100)
	s.RecordRequest(10*time.Millisecond, 200)
	s.RecordRequest(90*time.Millisecond, 50)

	snap := s.Snapshot()
	if snap.TotalRequests != 3 {
		t.Fatalf("total requests = %d", snap.TotalRequests)
	}
	if snap.MinLatencyMs != 10 {
		t.Fatalf("min latency = %v", snap.MinLatencyMs)
	}
	if snap.MaxLatencyMs != 90 {
		t.Fatalf("max latency = %v", snap.MaxLatencyMs)
	}
	if snap.TotalBytesReceived != 350 {
		t.Fatalf("total bytes = %d", snap.TotalBytesReceived)
	}
}

func TestRecordErrorHistogram(t *testing.T) {
	s := New()
	s.RecordError(ErrConnectionFailed)
	s.RecordError(ErrConnectionFailed)
	s.RecordError(ErrRetry)

	snap := s.Snapshot()
	if snap.TotalErrors != 3 {
		t.Fatalf("total errors = %d", snap.TotalErrors)
	}
	if snap.ErrorCounts[ErrConnectionFailed] != 2 {
		t.Fatalf("connection_failed count = %d", snap.ErrorCounts[ErrConnectionFailed])
	}
	if snap.ErrorCounts[ErrRetry] != 1 {
		t.Fatalf("retry count = %d", snap.ErrorCounts[ErrRetry])
	}
}

func TestResetClearsCounters(t *testing.T) {
	s := New()
	s.RecordRequest(5*time.Millisecond, 10)
	s.RecordError(ErrSendFailed)
	s.Reset()

	snap := s.Snapshot()
	if snap.TotalRequests != 0 || snap.TotalErrors != 0 || snap.MinLatencyMs != 0 {
		t.Fatalf("expected zeroed snapshot, got %+v", snap)
	}
}

func TestProgressCounters(t *testing.T) {
	s := New()
	s.SetRunning(true)
	s.SetTotal(1000)
	s.AddDownloaded(100)
	s.AddDownloaded(150)

	downloaded, total, running := s.Progress()
	if downloaded != 250 || total != 1000 || !running {
		t.Fatalf("unexpected progress: %d/%d running=%v", downloaded, total, running)
	}
}
