package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRun(t *testing.T) {
	m := NewMetrics()

	m.RecordRun("manual", "success", 2*time.Second)
	m.RecordRun("scheduled", "error", time.Second)
	m.RecordRun("manual", "success", time.Second)

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("manual", "success")); got != 2 {
		t.Errorf("manual success runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("scheduled", "error")); got != 1 {
		t.Errorf("scheduled error runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LastRunTimestamp); got == 0 {
		t.Error("LastRunTimestamp should be set after a successful run")
	}
}

func TestRecordRowsAndItems(t *testing.T) {
	m := NewMetrics()

	m.RecordRows(3, 1)
	m.RecordRows(2, 0)
	m.RecordDiscovered(4)
	m.RecordSkipped("no_counters", 2)
	m.RecordSkipped("no_counters", 0)
	m.SetTrackedItems(7)

	if got := testutil.ToFloat64(m.RowsAppended); got != 5 {
		t.Errorf("RowsAppended = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.DuplicatesSkipped); got != 1 {
		t.Errorf("DuplicatesSkipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ItemsDiscovered); got != 4 {
		t.Errorf("ItemsDiscovered = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.ItemsSkipped.WithLabelValues("no_counters")); got != 2 {
		t.Errorf("ItemsSkipped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TrackedItems); got != 7 {
		t.Errorf("TrackedItems = %v, want 7", got)
	}
}

func TestRecordAPICallAndStoreOp(t *testing.T) {
	m := NewMetrics()

	m.RecordAPICall("youtube", "videos.list", "success", 100*time.Millisecond)
	m.RecordStoreOp("sheets", "append", Status(errors.New("boom")), 50*time.Millisecond)

	if got := testutil.ToFloat64(m.APICallsTotal.WithLabelValues("youtube", "videos.list", "success")); got != 1 {
		t.Errorf("APICallsTotal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StoreOpsTotal.WithLabelValues("sheets", "append", "error")); got != 1 {
		t.Errorf("StoreOpsTotal = %v, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRun("manual", "success", time.Second)
	m.RecordRows(1, 1)
	m.RecordAPICall("youtube", "channels.list", "success", time.Second)
	m.RecordStoreOp("bolt", "read", "success", time.Second)
	m.RecordDiscovered(1)
	m.RecordSkipped("no_publish_time", 1)
	m.SetTrackedItems(1)
}

func TestHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordRows(1, 0)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "shorts_rows_appended_total") {
		t.Error("metrics output missing shorts_rows_appended_total")
	}
}
