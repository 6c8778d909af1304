package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/chatpool/internal/tier"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		out = append(out, rec)
	}
	return out
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx := context.Background()

	entry := &AuditEntry{Timestamp: time.Now(), UserID: "alice", Action: "connect"}
	audit.LogAction(ctx, entry)

	entry.Tier = "starter"
	entry.HostingType = tier.Shared
	entry.HostRef = "shared-1"
	entry.Duration = 1500 * time.Millisecond
	audit.LogResult(ctx, entry)

	audit.LogResult(ctx, &AuditEntry{UserID: "bob", Action: "send_message", ErrorMsg: "host not ready"})

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "session_action", lines[0]["msg"])
	assert.Equal(t, "connect", lines[0]["action"])

	assert.Equal(t, "session_action_result", lines[1]["msg"])
	assert.Equal(t, "shared", lines[1]["hosting_type"])
	assert.Equal(t, "shared-1", lines[1]["host_ref"])
	assert.Equal(t, float64(1500), lines[1]["duration_ms"])

	assert.Equal(t, "session_action_error", lines[2]["msg"])
	assert.Equal(t, "ERROR", lines[2]["level"])
	assert.Equal(t, "host not ready", lines[2]["error"])
}

func TestRegistryWritesAuditTrail(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	registry := NewSessionRegistry(prefixResolver, []Host{newFakeHost(tier.Shared)}, 0, discardLogger(), NewAuditLogger(logger))

	_, err := registry.ConnectUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Error(t, registry.Pause(context.Background(), "ghost"))

	var actions []string
	for _, rec := range decodeLogLines(t, &buf) {
		actions = append(actions, rec["msg"].(string)+":"+rec["action"].(string))
	}
	assert.Equal(t, []string{
		"session_action:connect",
		"session_action_result:connect",
		"session_action:pause",
		"session_action_error:pause",
	}, actions)
}
