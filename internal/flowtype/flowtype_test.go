package flowtype

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateTagCloneIsIndependent(t *testing.T) {
	var edge = EdgeId{ParentNode: "a", ParentChannel: 0}
	var original = StateTag{edge: 3}
	var clone = original.Clone()

	clone[edge] = 9
	require.Equal(t, 3, original[edge])
	require.True(t, original.Equal(StateTag{edge: 3}))
	require.False(t, original.Equal(clone))
}

func TestEdgeIdLessIsLexicographic(t *testing.T) {
	var a = EdgeId{ParentNode: "a", ParentChannel: 1}
	var b = EdgeId{ParentNode: "b", ParentChannel: 0}
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))

	var a0 = EdgeId{ParentNode: "a", ParentChannel: 0}
	var a1 = EdgeId{ParentNode: "a", ParentChannel: 1}
	require.True(t, a0.Less(a1))
}

func TestConcatPreservesOrder(t *testing.T) {
	var batches = []Batch{
		{Rows: []Row{{"k": 1}}},
		{Rows: []Row{{"k": 2}, {"k": 3}}},
	}
	var merged = Concat(batches)
	require.Len(t, merged.Rows, 3)
	require.Equal(t, 1, merged.Rows[0]["k"])
	require.Equal(t, 3, merged.Rows[2]["k"])
}

func TestPartitionSpecRouteByColumnMod(t *testing.T) {
	var spec = PartitionSpec{ColumnMod: "key"}
	var batch = Batch{Rows: []Row{
		{"key": 0}, {"key": 1}, {"key": 2}, {"key": "3"}, {"key": -1},
	}}

	var sub0 = spec.Route(batch, 0, 4)
	require.Len(t, sub0.Rows, 1)
	require.Equal(t, 0, sub0.Rows[0]["key"])

	// -1 mod 4 normalizes to channel 3, matching Python's modulo semantics
	// rather than Go's truncating one.
	var sub3 = spec.Route(batch, 3, 4)
	require.Len(t, sub3.Rows, 2)
}

func TestPartitionSpecRouteByFunc(t *testing.T) {
	var calls []int
	var spec = PartitionSpec{Func: func(b Batch, channel int) Batch {
		calls = append(calls, channel)
		return b
	}}
	require.True(t, spec.IsFunc())
	spec.Route(Batch{}, 2, 4)
	require.Equal(t, []int{2}, calls)
}

func TestDataAndDonePayload(t *testing.T) {
	var d = DataPayload(Batch{Rows: []Row{{"a": 1}}})
	require.False(t, d.Done)
	require.Len(t, d.Batch.Rows, 1)

	var done = DonePayload()
	require.True(t, done.Done)
	require.Nil(t, done.Batch.Rows)
}
