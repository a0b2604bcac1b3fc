// Package localrpc dispatches rpc.ActorServer calls directly within one
// process, keyed by a string "address" that is just the target
// flowtype.ActorId's string form. It backs unit tests and the
// single-process demo driver, standing in for the distributed grpcrpc
// transport.
package localrpc

import (
	"fmt"
	"sync"

	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/rpc"
)

// Registry resolves an address to the live rpc.ActorServer registered
// under it. An actor's "network location" in local mode is simply its own
// ActorId string; UpdateTargetIP in this transport amounts to bookkeeping
// since addresses never really move, but the call still exercises the
// same code paths a real deployment would.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]rpc.ActorServer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{servers: make(map[string]rpc.ActorServer)}
}

// Address returns the canonical local-mode address for id.
func Address(id flowtype.ActorId) string {
	return id.String()
}

// Register makes server reachable at id's canonical address.
func (r *Registry) Register(id flowtype.ActorId, server rpc.ActorServer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[Address(id)] = server
}

// Deregister removes id, e.g. once it has fully shut down.
func (r *Registry) Deregister(id flowtype.ActorId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.servers, Address(id))
}

// Lookup resolves address to a live ActorServer.
func (r *Registry) Lookup(address string) (rpc.ActorServer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[address]
	return s, ok
}

// Peer resolves address through the registry, implementing rpc.PeerDialer.
func (r *Registry) Peer(address string) (rpc.ActorServer, error) {
	s, ok := r.Lookup(address)
	if !ok {
		return nil, ErrUnreachable{Address: address}
	}
	return s, nil
}

// ErrUnreachable is returned when address has no registered server —
// the local-mode equivalent of a dead peer.
type ErrUnreachable struct {
	Address string
}

func (e ErrUnreachable) Error() string {
	return fmt.Sprintf("no actor registered at address %q", e.Address)
}
