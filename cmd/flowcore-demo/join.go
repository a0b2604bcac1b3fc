package main

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/estuary/flowcore/internal/flowtype"
)

// join implements function.Object as an in-memory hash inner join on a
// named key column between two parent nodes, standing in for the
// "user-supplied function object" scenario 1 of spec.md §8 exercises.
// Columns from the right side are namespaced "r_<col>" in the output to
// avoid collisions with the left side.
type join struct {
	Key         string
	Left, Right flowtype.NodeId

	BufLeft  map[string][]flowtype.Row
	BufRight map[string][]flowtype.Row
}

func newJoin(key string, left, right flowtype.NodeId) *join {
	return &join{
		Key:      key,
		Left:     left,
		Right:    right,
		BufLeft:  make(map[string][]flowtype.Row),
		BufRight: make(map[string][]flowtype.Row),
	}
}

func (j *join) Initialize(int) error { return nil }

func keyOf(row flowtype.Row, column string) string {
	return fmt.Sprintf("%v", row[column])
}

func merge(left, right flowtype.Row) flowtype.Row {
	out := make(flowtype.Row, len(left)+len(right))
	for k, v := range left {
		out[k] = v
	}
	for k, v := range right {
		out["r_"+k] = v
	}
	return out
}

func (j *join) Apply(parent flowtype.NodeId, batch flowtype.Batch) ([]flowtype.Batch, error) {
	var out flowtype.Batch

	switch parent {
	case j.Left:
		for _, row := range batch.Rows {
			k := keyOf(row, j.Key)
			j.BufLeft[k] = append(j.BufLeft[k], row)
			for _, match := range j.BufRight[k] {
				out.Rows = append(out.Rows, merge(row, match))
			}
		}
	case j.Right:
		for _, row := range batch.Rows {
			k := keyOf(row, j.Key)
			j.BufRight[k] = append(j.BufRight[k], row)
			for _, match := range j.BufLeft[k] {
				out.Rows = append(out.Rows, merge(match, row))
			}
		}
	default:
		return nil, fmt.Errorf("join received a batch from unrecognized parent %s", parent)
	}

	if len(out.Rows) == 0 {
		return nil, nil
	}
	return []flowtype.Batch{out}, nil
}

// Done is a no-op: an inner join has nothing to flush once both parents
// have finished, since every unmatched buffered row by definition never
// produces an output row.
func (j *join) Done(int) ([]flowtype.Batch, error) { return nil, nil }

func (j *join) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(j); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (j *join) Deserialize(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return gob.NewDecoder(bytes.NewReader(b)).Decode(j)
}
