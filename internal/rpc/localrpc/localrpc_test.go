package localrpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estuary/flowcore/internal/flowtype"
)

// stubServer is a minimal rpc.ActorServer recording AppendToTargets calls.
type stubServer struct {
	appended []flowtype.NodeId
}

func (s *stubServer) AppendToTargets(_ context.Context, target flowtype.NodeId, _ map[int]string, _ flowtype.PartitionSpec) error {
	s.appended = append(s.appended, target)
	return nil
}
func (s *stubServer) UpdateTargetIP(context.Context, flowtype.ActorId, string) error { return nil }
func (s *stubServer) UpdateTargetIPAndHelpRecover(context.Context, flowtype.ActorId, uint64, string) error {
	return nil
}
func (s *stubServer) HelpDownstreamRecover(context.Context, flowtype.ActorId, uint64) error { return nil }
func (s *stubServer) TruncateLoggedOutputs(context.Context, flowtype.ActorId, uint64) error { return nil }
func (s *stubServer) Execute(context.Context) error                                        { return nil }

func TestRegistryPeerResolvesRegisteredServer(t *testing.T) {
	var r = NewRegistry()
	var id = flowtype.ActorId{Node: "j", Channel: 0}
	var server = &stubServer{}
	r.Register(id, server)

	peer, err := r.Peer(Address(id))
	require.NoError(t, err)
	require.NoError(t, peer.AppendToTargets(context.Background(), "s", nil, flowtype.PartitionSpec{}))
	require.Equal(t, []flowtype.NodeId{"s"}, server.appended)
}

func TestRegistryPeerUnreachableAfterDeregister(t *testing.T) {
	var r = NewRegistry()
	var id = flowtype.ActorId{Node: "j", Channel: 0}
	r.Register(id, &stubServer{})
	r.Deregister(id)

	_, err := r.Peer(Address(id))
	require.Error(t, err)
	var unreachable ErrUnreachable
	require.ErrorAs(t, err, &unreachable)
	require.Equal(t, Address(id), unreachable.Address)
}

func TestAddressIsStableForSameId(t *testing.T) {
	var id = flowtype.ActorId{Node: "j", Channel: 3}
	require.Equal(t, Address(id), Address(id))
	require.Equal(t, "j-3", Address(id))
}
