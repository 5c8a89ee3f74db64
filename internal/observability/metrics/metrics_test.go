package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(nonceQueries.WithLabelValues("test-net", "safe"))
	ObserveNonceQuery("test-net", "safe")
	ObserveNonceQuery("test-net", "safe")
	if got := testutil.ToFloat64(nonceQueries.WithLabelValues("test-net", "safe")); got != before+2 {
		t.Fatalf("unexpected nonce query count %v", got)
	}

	ObserveProvision("safe", "success", 1500*time.Millisecond)
	if got := testutil.ToFloat64(provisionTotal.WithLabelValues("safe", "success")); got < 1 {
		t.Fatalf("provision counter not incremented")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveTransaction("test-net", "enable_module")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `intentwallet_chain_transactions_total{kind="enable_module",network="test-net"}`) {
		t.Fatalf("transaction counter missing from exposition:\n%s", body)
	}
}
