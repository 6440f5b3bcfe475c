package observability

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/knife/internal/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	require.NoError(t, InitAuditLogger(path))

	ctx := tracing.WithTraceID(context.Background(), "trace-9")
	RecordSessionAudit(ctx, "s1", "open", "success", nil)
	RecordInterruptAudit(ctx, "conn-2", "interrupted", map[string]interface{}{"name": "session.s1.run_code"})
	require.NoError(t, GetAuditLogger().Close())

	// events after close are discarded
	RecordSessionAudit(ctx, "s1", "close", "success", nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "session", first["type"])
	assert.Equal(t, "open", first["action"])
	assert.Equal(t, "s1", first["session"])
	assert.Equal(t, "trace-9", first["trace_id"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "interrupt", second["action"])
	assert.Equal(t, "conn-2", second["worker_id"])
	assert.Equal(t, "session.s1.run_code", second["metadata"].(map[string]interface{})["name"])
}
