package devserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"trisync/core"
)

// TestRouterEndpoints verifies the HTTP surface: health always, metrics only
// when telemetry is configured.
func TestRouterEndpoints(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	tel := core.NewTelemetry()
	srv := New(core.NewTripleStoreWith(core.NewClock(), tel), "k", log, tel)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz returned %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics returned %d", resp.StatusCode)
	}

	bare := New(core.NewTripleStore(), "k", log, nil)
	ts2 := httptest.NewServer(bare.Router())
	defer ts2.Close()
	resp, err = http.Get(ts2.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics without telemetry: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("metrics without telemetry returned %d", resp.StatusCode)
	}
}
