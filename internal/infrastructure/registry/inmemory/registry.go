package inmemoryregistry

import (
	"context"
	"fmt"
	"sync"

	"github.com/pco-network/pco/internal/core/ports"
)

// Registry is an ExternalRegistry backed by a map, used for development and
// tests. Tokens are minted explicitly and anyone owning one can transfer it.
type Registry interface {
	ports.ExternalRegistry
	Mint(tokenId, owner string) error
}

type registry struct {
	lock   *sync.RWMutex
	owners map[string]string
}

func NewRegistry() Registry {
	return &registry{&sync.RWMutex{}, make(map[string]string)}
}

func (r *registry) Mint(tokenId, owner string) error {
	if tokenId == "" || owner == "" {
		return fmt.Errorf("missing token id or owner")
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.owners[tokenId]; ok {
		return fmt.Errorf("token %s already minted", tokenId)
	}
	r.owners[tokenId] = owner
	return nil
}

func (r *registry) OwnerOf(_ context.Context, tokenId string) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	owner, ok := r.owners[tokenId]
	if !ok {
		return "", fmt.Errorf("token %s not found", tokenId)
	}
	return owner, nil
}

func (r *registry) TransferFrom(_ context.Context, from, to, tokenId string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	owner, ok := r.owners[tokenId]
	if !ok {
		return fmt.Errorf("token %s not found", tokenId)
	}
	if owner != from {
		return fmt.Errorf("token %s is not owned by %s", tokenId, from)
	}
	if to == "" {
		return fmt.Errorf("missing recipient")
	}
	r.owners[tokenId] = to
	return nil
}
