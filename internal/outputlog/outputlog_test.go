package outputlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estuary/flowcore/internal/flowtype"
)

func TestPushNextAssignsIncreasingSeq(t *testing.T) {
	var l = New()
	var s1 = l.PushNext(flowtype.DataPayload(flowtype.Batch{}))
	var s2 = l.PushNext(flowtype.DataPayload(flowtype.Batch{}))
	require.Equal(t, uint64(1), s1)
	require.Equal(t, uint64(2), s2)
	require.Equal(t, 2, l.Len())
}

func TestResendAboveOnlySendsNewerEntries(t *testing.T) {
	var l = New()
	var target = flowtype.ActorId{Node: "c", Channel: 0}
	l.RegisterTarget(target)

	for i := 0; i < 5; i++ {
		l.PushNext(flowtype.DataPayload(flowtype.Batch{Rows: []flowtype.Row{{"i": i}}}))
	}

	var got []uint64
	l.ResendAbove(target, 2, func(e Entry) { got = append(got, e.Seq) })
	require.Equal(t, []uint64{3, 4, 5}, got)
}

func TestTruncateRetainsNewMinItself(t *testing.T) {
	// Regression for the half-open interval [old_min, new_min): the entry
	// at exactly new_min survives Truncate, while ResendAbove (seq > cursor)
	// from cursor new_min only resends the entries after it.
	var l = New()
	var t1 = flowtype.ActorId{Node: "c", Channel: 0}
	var t2 = flowtype.ActorId{Node: "c", Channel: 1}
	l.RegisterTarget(t1)
	l.RegisterTarget(t2)

	for i := 0; i < 5; i++ {
		l.PushNext(flowtype.DataPayload(flowtype.Batch{}))
	}

	l.Truncate(t1, 3)
	require.Equal(t, 5, l.Len(), "t2's cursor (0) still pins everything")

	l.Truncate(t2, 3)
	require.Equal(t, 3, l.Len(), "entries 1,2 dropped; 3,4,5 retained")

	var got []uint64
	l.ResendAbove(t1, 3, func(e Entry) { got = append(got, e.Seq) })
	require.Equal(t, []uint64{4, 5}, got)
}

func TestDropTargetRecomputesMinimum(t *testing.T) {
	var l = New()
	var lagging = flowtype.ActorId{Node: "c", Channel: 0}
	var healthy = flowtype.ActorId{Node: "c", Channel: 1}
	l.RegisterTarget(lagging)
	l.RegisterTarget(healthy)

	for i := 0; i < 4; i++ {
		l.PushNext(flowtype.DataPayload(flowtype.Batch{}))
	}
	l.Truncate(healthy, 4)
	require.Equal(t, 4, l.Len(), "lagging target at cursor 0 still pins everything")

	l.DropTarget(lagging)
	require.Equal(t, 1, l.Len(), "new_min (seq 4) itself is retained")
}

func TestRestoreSnapshotRoundTrips(t *testing.T) {
	var l = New()
	l.RegisterTarget(flowtype.ActorId{Node: "c", Channel: 0})
	l.PushNext(flowtype.DataPayload(flowtype.Batch{Rows: []flowtype.Row{{"a": 1}}}))

	entries, target, outSeq := l.Snapshot()
	var restored = Restore(entries, target, outSeq)

	require.Equal(t, l.Len(), restored.Len())
	var got []uint64
	restored.ResendAbove(flowtype.ActorId{Node: "c", Channel: 0}, 0, func(e Entry) { got = append(got, e.Seq) })
	require.Equal(t, []uint64{1}, got)
}
