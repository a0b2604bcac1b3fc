package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/estuary/flowcore/internal/actor"
	"github.com/estuary/flowcore/internal/dataset/csv"
	"github.com/estuary/flowcore/internal/dataset/memoutput"
	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/function"
	"github.com/estuary/flowcore/internal/rpc"
	"github.com/estuary/flowcore/internal/rpc/localrpc"
	"github.com/estuary/flowcore/internal/store/filestore"
	"github.com/estuary/flowcore/internal/store/memstore"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

const nodeA, nodeB, nodeJoin, nodeSink flowtype.NodeId = "A", "B", "J", "S"

type cmdRun struct {
	CSVA               string        `long:"csv-a" required:"true" description:"CSV path for input group A"`
	CSVB               string        `long:"csv-b" required:"true" description:"CSV path for input group B"`
	KeyColumn          string        `long:"key" default:"key" description:"join key column name"`
	MapperChannels     int           `long:"mapper-channels" default:"2" description:"parallelism of each input group"`
	JoinChannels       int           `long:"join-channels" default:"4" description:"parallelism of the join node"`
	CheckpointInterval int           `long:"checkpoint-interval" default:"10" description:"executions between checkpoints"`
	WorkDir            string        `long:"work-dir" description:"directory for input actor checkpoint files (temp dir if empty)"`
	KillJoinChannels   string        `long:"kill-join-channels" description:"comma-separated join channel ids to kill and restart mid-run, e.g. 0,2"`
	KillAfter          time.Duration `long:"kill-after" default:"1s" description:"delay before killing the channels named by --kill-join-channels"`
}

func (cmd cmdRun) Execute(_ []string) error {
	ctx := context.Background()

	workDir := cmd.WorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "flowcore-demo")
		if err != nil {
			return fmt.Errorf("creating work dir: %w", err)
		}
		workDir = dir
	}
	log.WithField("workDir", workDir).Info("flowcore-demo starting")

	rt := actor.NewRuntime()
	inputCheckpoints := filestore.New(workDir)

	mappers := make(map[flowtype.ActorId]*actor.InputActor)
	for _, g := range []struct {
		node flowtype.NodeId
		csv  string
	}{{nodeA, cmd.CSVA}, {nodeB, cmd.CSVB}} {
		for ch := 0; ch < cmd.MapperChannels; ch++ {
			id := flowtype.ActorId{Node: g.node, Channel: ch}
			ia, err := actor.NewInputActor(ctx, id, cmd.MapperChannels, rt.Bus, rt.Registry,
				&csv.Factory{Path: g.csv}, inputCheckpoints, cmd.CheckpointInterval, nil)
			if err != nil {
				return fmt.Errorf("constructing mapper %s: %w", id, err)
			}
			mappers[id] = ia
		}
	}

	joinStateTagLog := memstore.NewStateTagLog()
	joinCheckpoints := memstore.NewCheckpoints()
	joinParents := map[flowtype.NodeId]map[int]string{
		nodeA: addressesFor(nodeA, cmd.MapperChannels),
		nodeB: addressesFor(nodeB, cmd.MapperChannels),
	}

	joins := make(map[flowtype.ActorId]*actor.TaskActor)
	for ch := 0; ch < cmd.JoinChannels; ch++ {
		id := flowtype.ActorId{Node: nodeJoin, Channel: ch}
		ta, err := actor.NewTaskActor(ctx, id, rt.Bus, rt.Registry, joinStateTagLog, joinCheckpoints,
			cmd.CheckpointInterval, clone(joinParents), newJoin(cmd.KeyColumn, nodeA, nodeB))
		if err != nil {
			return fmt.Errorf("constructing join channel %d: %w", ch, err)
		}
		joins[id] = ta
	}

	out := memoutput.New()
	sinkStateTagLog := memstore.NewStateTagLog()
	sinkCheckpoints := memstore.NewCheckpoints()
	sinkID := flowtype.ActorId{Node: nodeSink, Channel: 0}
	sinkParents := map[flowtype.NodeId]map[int]string{nodeJoin: addressesFor(nodeJoin, cmd.JoinChannels)}
	sink, err := actor.NewSinkActor(ctx, sinkID, rt.Bus, rt.Registry, sinkStateTagLog, sinkCheckpoints,
		cmd.CheckpointInterval, sinkParents, function.Identity{}, "demo-host", out)
	if err != nil {
		return fmt.Errorf("constructing sink: %w", err)
	}

	joinPartition := flowtype.PartitionSpec{ColumnMod: cmd.KeyColumn}
	for id, m := range mappers {
		if err := m.AppendToTargets(ctx, nodeJoin, addressesFor(nodeJoin, cmd.JoinChannels), joinPartition); err != nil {
			return fmt.Errorf("wiring mapper %s to join: %w", id, err)
		}
	}
	for id, j := range joins {
		if err := j.AppendToTargets(ctx, nodeSink, addressesFor(nodeSink, 1), flowtype.PartitionSpec{}); err != nil {
			return fmt.Errorf("wiring join %s to sink: %w", id, err)
		}
	}

	for id, m := range mappers {
		rt.Spawn(ctx, id, m)
	}
	for id, j := range joins {
		rt.Spawn(ctx, id, j)
	}
	rt.Spawn(ctx, sinkID, sink)

	killIDs, err := parseChannels(cmd.KillJoinChannels)
	if err != nil {
		return err
	}
	if len(killIDs) > 0 {
		go cmd.injectFaults(ctx, rt, killIDs, joinStateTagLog, joinCheckpoints, joinParents)
	}

	if err := rt.Wait(sinkID); err != nil {
		fmt.Fprintln(os.Stderr, red("demo run failed: "+err.Error()))
		return err
	}

	rows := out.Rows()
	fmt.Println(green(fmt.Sprintf("join produced %d rows across %d objects", len(rows), len(out.Objects()))))
	if len(killIDs) > 0 {
		fmt.Println(yellow(fmt.Sprintf("restarted join channels: %v", killIDs)))
	}
	return nil
}

// injectFaults kills the named join channels after a delay, then
// rebuilds and restarts each from its last checkpoint, re-registering the
// sink as a target exactly as the controller would on a real restart.
func (cmd cmdRun) injectFaults(
	ctx context.Context,
	rt *actor.Runtime,
	channels []int,
	stateTagLog *memstore.StateTagLog,
	checkpoints *memstore.Checkpoints,
	parents map[flowtype.NodeId]map[int]string,
) {
	time.Sleep(cmd.KillAfter)

	for _, ch := range channels {
		id := flowtype.ActorId{Node: nodeJoin, Channel: ch}
		log.WithField("actor", id).Warn("injecting fault: killing join channel")

		err := rt.Restart(ctx, id, func() (rpc.ActorServer, error) {
			ta, err := actor.NewTaskActor(ctx, id, rt.Bus, rt.Registry, stateTagLog, checkpoints,
				cmd.CheckpointInterval, clone(parents), newJoin(cmd.KeyColumn, nodeA, nodeB))
			if err != nil {
				return nil, err
			}
			if err := ta.AppendToTargets(ctx, nodeSink, addressesFor(nodeSink, 1), flowtype.PartitionSpec{}); err != nil {
				return nil, err
			}
			return ta, nil
		})
		if err != nil {
			log.WithError(err).WithField("actor", id).Error("failed to restart join channel")
		}
	}
}

func addressesFor(node flowtype.NodeId, numChannels int) map[int]string {
	out := make(map[int]string, numChannels)
	for ch := 0; ch < numChannels; ch++ {
		out[ch] = localrpc.Address(flowtype.ActorId{Node: node, Channel: ch})
	}
	return out
}

func clone(in map[flowtype.NodeId]map[int]string) map[flowtype.NodeId]map[int]string {
	out := make(map[flowtype.NodeId]map[int]string, len(in))
	for node, channels := range in {
		cp := make(map[int]string, len(channels))
		for ch, addr := range channels {
			cp[ch] = addr
		}
		out[node] = cp
	}
	return out
}

func parseChannels(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("parsing --kill-join-channels: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}
