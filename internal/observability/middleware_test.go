package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/scpibridge/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestAdminRequestsCountsAndLogs(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	RegisterMetrics()

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	r := gin.New()
	r.Use(AdminRequests(logger, "hub-mw"))
	r.GET("/session", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/session", "/session", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(httpRequests.WithLabelValues("hub-mw", "GET", "/session", "200")); got != 2 {
		t.Fatalf("expected 2 session requests, got %v", got)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("hub-mw", "GET", "unmatched", "404")); got != 1 {
		t.Fatalf("expected unmatched 404 to be counted once, got %v", got)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[2], `"level":"warn"`) || !strings.Contains(lines[2], `"route":"unmatched"`) {
		t.Fatalf("unexpected 404 log line: %s", lines[2])
	}
}

func TestAdminRequestsProbesLogAtDebug(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)

	r := gin.New()
	r.Use(AdminRequests(logger, "hub-probe"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if buf.Len() != 0 {
		t.Fatalf("health probe should not log at info: %s", buf.String())
	}
}
