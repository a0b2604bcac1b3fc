package grpcrpc

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/rpc"
)

// connCacheSize bounds how many live peer connections a single actor
// keeps open at once; a topology with many more edges than this will
// thrash connections rather than grow unbounded memory.
const connCacheSize = 256

// ClientPool dials rpc.ActorServer peers by address (host:port) and caches
// the resulting connections in an LRU. It implements rpc.PeerDialer, and
// each peer it returns implements rpc.ActorServer, so a caller can treat a
// remote peer exactly like a local one.
type ClientPool struct {
	conns *lru.Cache[string, *grpc.ClientConn]
}

// NewClientPool returns a ClientPool with room for connCacheSize live
// connections.
func NewClientPool() (*ClientPool, error) {
	conns, err := lru.NewWithEvict[string, *grpc.ClientConn](connCacheSize, func(_ string, conn *grpc.ClientConn) {
		conn.Close()
	})
	if err != nil {
		return nil, err
	}
	return &ClientPool{conns: conns}, nil
}

func (p *ClientPool) dial(address string) (*grpc.ClientConn, error) {
	if conn, ok := p.conns.Get(address); ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dialing actor peer %s: %w", address, err)
	}
	p.conns.Add(address, conn)
	return conn, nil
}

// Forget closes and evicts the connection to address, e.g. after
// UpdateTargetIP moves the peer somewhere else.
func (p *ClientPool) Forget(address string) {
	p.conns.Remove(address)
}

// Peer returns an rpc.ActorServer that dispatches every call to address
// over gRPC.
func (p *ClientPool) Peer(address string) (rpc.ActorServer, error) {
	conn, err := p.dial(address)
	if err != nil {
		return nil, err
	}
	return &client{conn: conn}, nil
}

type client struct {
	conn *grpc.ClientConn
}

var _ rpc.ActorServer = (*client)(nil)

func (c *client) invoke(ctx context.Context, method string, req, reply any) error {
	return c.conn.Invoke(ctx, "/"+serviceName+"/"+method, req, reply, grpc.CallContentSubtype(codecName))
}

func ackErr(ack *Ack, err error) error {
	if err != nil {
		return err
	}
	if !ack.Ok {
		return errors.New(ack.Error)
	}
	return nil
}

func (c *client) AppendToTargets(ctx context.Context, target flowtype.NodeId, channelToAddress map[int]string, partition flowtype.PartitionSpec) error {
	m := make(map[int32]string, len(channelToAddress))
	for ch, addr := range channelToAddress {
		m[int32(ch)] = addr
	}
	req := &AppendToTargetsRequest{TargetNode: string(target), ChannelToAddress: m, PartitionColumn: partition.ColumnMod}
	reply := new(Ack)
	err := c.invoke(ctx, "AppendToTargets", req, reply)
	return ackErr(reply, err)
}

func (c *client) UpdateTargetIP(ctx context.Context, target flowtype.ActorId, newAddress string) error {
	req := &UpdateTargetIPRequest{TargetNode: string(target.Node), TargetChannel: int32(target.Channel), NewAddress: newAddress}
	reply := new(Ack)
	err := c.invoke(ctx, "UpdateTargetIP", req, reply)
	return ackErr(reply, err)
}

func (c *client) UpdateTargetIPAndHelpRecover(ctx context.Context, target flowtype.ActorId, consumerStateTag uint64, newAddress string) error {
	req := &UpdateTargetIPAndHelpRecoverRequest{
		TargetNode: string(target.Node), TargetChannel: int32(target.Channel),
		ConsumerStateTag: consumerStateTag, NewAddress: newAddress,
	}
	reply := new(Ack)
	err := c.invoke(ctx, "UpdateTargetIPAndHelpRecover", req, reply)
	return ackErr(reply, err)
}

func (c *client) HelpDownstreamRecover(ctx context.Context, target flowtype.ActorId, consumerStateTag uint64) error {
	req := &HelpDownstreamRecoverRequest{TargetNode: string(target.Node), TargetChannel: int32(target.Channel), ConsumerStateTag: consumerStateTag}
	reply := new(Ack)
	err := c.invoke(ctx, "HelpDownstreamRecover", req, reply)
	return ackErr(reply, err)
}

func (c *client) TruncateLoggedOutputs(ctx context.Context, target flowtype.ActorId, newCursor uint64) error {
	req := &TruncateLoggedOutputsRequest{TargetNode: string(target.Node), TargetChannel: int32(target.Channel), NewCursor: newCursor}
	reply := new(Ack)
	err := c.invoke(ctx, "TruncateLoggedOutputs", req, reply)
	return ackErr(reply, err)
}

func (c *client) Execute(ctx context.Context) error {
	reply := new(Ack)
	err := c.invoke(ctx, "Execute", &ExecuteRequest{}, reply)
	return ackErr(reply, err)
}
