package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-market/pkg/log"
)

func captureCtx(buf *bytes.Buffer) context.Context {
	return log.WithLogger(context.Background(), log.New(log.Config{Level: "info", Output: buf}))
}

func TestLogWithTarget(t *testing.T) {
	var buf bytes.Buffer
	LogWithTarget(captureCtx(&buf), ActionPurchase, "buyer-1", "42", "listing purchased")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, log.LogTypeAudit, entry[log.FieldLogType])
	assert.Equal(t, ActionPurchase, entry[FieldAction])
	assert.Equal(t, "buyer-1", entry[log.FieldUserID])
	assert.Equal(t, "42", entry[log.FieldTargetID])
	assert.Equal(t, "listing purchased", entry["message"])
}

func TestLogWithDetail(t *testing.T) {
	var buf bytes.Buffer
	LogWithDetail(captureCtx(&buf), ActionLoginFailed, "", "a@example.com", "login failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "a@example.com", entry[FieldDetail])
}
