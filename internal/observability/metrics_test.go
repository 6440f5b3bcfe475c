package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	RecordLockWait("engine", 5*time.Millisecond)
	RecordRequest("code.run", 10*time.Millisecond, true)
	RecordInterrupt("interrupted")
	SetActiveRequest(true)
	SetOpenSessions(2)
	RecordResourceBind(true)
	RecordResourceClose(true)
	RecordExecution("ok")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	MetricsHandler().ServeHTTP(rec, req)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "knife_lock_wait_seconds")
	assert.Contains(t, text, `knife_request_total{method="code.run",status="success"}`)
	assert.Contains(t, text, "knife_active_request 1")
	assert.Contains(t, text, "knife_open_sessions 2")
	assert.Contains(t, text, `knife_interrupt_total{result="interrupted"}`)
}
