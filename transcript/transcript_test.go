package transcript

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterFormat(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(&buf, "s-1")
	require.NoError(t, err)

	require.NoError(t, w.Write("user", "", "Hello"))
	require.NoError(t, w.Write("agent", "main", "Hi, how can I help?"))
	require.NoError(t, w.Summary("turns=1"))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write("user", "", "late"), ErrClosed)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "s-1", first["session_id"])
	assert.Contains(t, first, "started_at")

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "user", rec["role"])
	assert.Equal(t, "Hello", rec["content"])
	assert.Contains(t, rec, "timestamp")
	assert.NotContains(t, rec, "agent")

	hdr, recs, err := Read(strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, "s-1", hdr.SessionID)
	require.Len(t, recs, 3)
	assert.Equal(t, "main", recs[1].Agent)
	assert.Equal(t, RoleSummary, recs[2].Role)
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(dir, "abc")
	require.NoError(t, err)
	require.NoError(t, w.Write("user", "", "x"))
	require.NoError(t, w.Close())

	f, err := os.Open(w.Path())
	require.NoError(t, err)
	defer f.Close()
	hdr, recs, err := Read(f)
	require.NoError(t, err)
	assert.Equal(t, "abc", hdr.SessionID)
	assert.Len(t, recs, 1)
}

func TestReadRejectsMalformed(t *testing.T) {
	_, _, err := Read(strings.NewReader("{\"session_id\":\"x\"}\nnot json\n"))
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	w := Discard("x")
	assert.NoError(t, w.Write("user", "", "x"))
	assert.NoError(t, w.Close())
}
