package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSyncPass(t *testing.T) {
	before := testutil.ToFloat64(syncPasses.WithLabelValues("deep", "success"))
	itemsBefore := testutil.ToFloat64(syncItems)

	RecordSyncPass(true, "success", 12, 1700000000)

	if got := testutil.ToFloat64(syncPasses.WithLabelValues("deep", "success")); got != before+1 {
		t.Fatalf("expected pass counter %v got %v", before+1, got)
	}
	if got := testutil.ToFloat64(syncItems); got != itemsBefore+12 {
		t.Fatalf("expected items counter %v got %v", itemsBefore+12, got)
	}
	if got := testutil.ToFloat64(lastSyncTimestamp); got != 1700000000 {
		t.Fatalf("expected last sync gauge got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordQueryCache("hit")
	RecordWebhook("invalidated")
	RecordLockContention()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"fansite_query_cache_requests_total",
		"fansite_webhook_notifications_total",
		"fansite_sync_lock_contention_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}
