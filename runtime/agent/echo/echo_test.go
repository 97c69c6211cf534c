package echo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddHistory_CopySafety(t *testing.T) {
	e := New("sess-1", "")
	meta := map[string]any{"sounding_index": 0}

	entry := LogEntry{Role: "user", Payload: "hello"}
	stamped := e.AddHistory(entry, "trace-1", "", NodeUser, meta)

	// mutating the caller's metadata after the call must not affect the
	// stored entry.
	meta["sounding_index"] = 99
	entry.Payload = "mutated"

	snap := e.GetFullEcho()
	require.Len(t, snap.History, 1)
	assert.Equal(t, "hello", snap.History[0].Payload)
	assert.Equal(t, 0, stamped.Metadata["sounding_index"])
	assert.Equal(t, 0, snap.History[0].Metadata["sounding_index"])
}

func TestAddHistory_StampsContext(t *testing.T) {
	e := New("sess-1", "")
	e.SetCascadeContext("cascade-a")
	e.SetPhaseContext("phase-1")

	stamped := e.AddHistory(LogEntry{Role: "agent"}, "t1", "", NodeAgent, nil)
	assert.Equal(t, "cascade-a", stamped.Metadata["cascade_id"])
	assert.Equal(t, "phase-1", stamped.Metadata["phase_name"])
}

func TestMerge_AppendsLineageErrorsAndNestsHistory(t *testing.T) {
	parent := New("parent", "")
	child := New("child", "parent")

	child.SetState("result", 42)
	child.AddLineage("phase-a", "out", "t1")
	child.AddError("phase-a", "sounding_error", "boom", nil)
	child.AddHistory(LogEntry{Role: "agent"}, "t1", "", NodeAgent, nil)

	parent.Merge(child)

	snap := parent.GetFullEcho()
	assert.Equal(t, 42, snap.State["result"])
	require.Len(t, snap.Lineage, 1)
	require.Len(t, snap.Errors, 1)
	assert.True(t, snap.HasErrors)
	assert.Equal(t, "failed", snap.Status)
	require.Len(t, snap.History, 1)
	assert.Equal(t, NodeStructure, snap.History[0].NodeType)
}

func TestRenderDiagram_ContinuityOnFailure(t *testing.T) {
	e := New("sess-1", "")
	e.SetSnapshotter(flakySnapshotter{fail: false, diagram: "stateDiagram-v2\n  a --> b"})
	e.AddHistory(LogEntry{Role: "user"}, "t1", "", NodeUser, nil)

	first := e.RenderDiagram()
	assert.Contains(t, first, "stateDiagram")

	e.SetSnapshotter(flakySnapshotter{fail: true})
	e.AddHistory(LogEntry{Role: "agent"}, "t2", "t1", NodeAgent, nil)

	second := e.RenderDiagram()
	assert.Equal(t, first, second, "must fall back to last good diagram on failure")
}

type flakySnapshotter struct {
	fail    bool
	diagram string
}

func (f flakySnapshotter) Render(e *Echo) (string, error) {
	if f.fail {
		return "", assert.AnError
	}
	return f.diagram, nil
}
