package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestUpdateAggregatesAcrossWorkers(t *testing.T) {
	s := New("rmtcore_test")
	readers := []ReaderSnapshot{{TotalNetInputBytes: 100}, {TotalNetInputBytes: 50}}
	writers := []WriterSnapshot{{TotalCommandsSent: 7}, {TotalCommandsSent: 3}}

	s.Update(readers, writers, 4, 2, 9)

	if got := testutil.ToFloat64(s.TotalNetInputBytes); got != 150 {
		t.Errorf("TotalNetInputBytes = %v, want 150", got)
	}
	if got := testutil.ToFloat64(s.TotalMsgsSent); got != 10 {
		t.Errorf("TotalMsgsSent = %v, want 10", got)
	}
	if got := testutil.ToFloat64(s.MbufsInqueue); got != 4 {
		t.Errorf("MbufsInqueue = %v, want 4", got)
	}
	if got := testutil.ToFloat64(s.RDBParsedCount); got != 9 {
		t.Errorf("RDBParsedCount = %v, want 9", got)
	}
}

func TestNewRegistersUnderNamespace(t *testing.T) {
	s := New("rmtcore_test2")
	mfs, err := s.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(mfs) != 7 {
		t.Errorf("len(metric families) = %d, want 7", len(mfs))
	}
}
