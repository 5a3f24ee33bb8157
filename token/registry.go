// Package token keeps minimal ownership bookkeeping for minted policy snapshots.
//
// There is a single owner slot: minting records the new owner for the whole
// collection, so the latest minter owns every token and BalanceOf is 0 or 1.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"qmaze/events"
)

const (
	Name   = "Maze Policy"
	Symbol = "QMAZE"
)

// Interface ids answered by SupportsInterface.
const (
	InterfaceERC165         uint32 = 0x01ffc9a7
	InterfaceERC721         uint32 = 0x80ac58cd
	InterfaceERC721Metadata uint32 = 0x5b5e139f
)

var (
	ErrNoToken   = errors.New("token does not exist")
	ErrNotMinted = errors.New("token not minted")
)

// Notifier receives Transfer and Minted notifications.
type Notifier interface {
	Notify(kind events.Kind, attrs map[string]string)
}

type Registry struct {
	mu       sync.RWMutex
	owner    string
	counter  uint32
	notifier Notifier
}

// NewRegistry returns an empty registry. notifier may be nil.
func NewRegistry(notifier Notifier) *Registry {
	return &Registry{notifier: notifier}
}

func (r *Registry) Name() string   { return Name }
func (r *Registry) Symbol() string { return Symbol }

// Mint issues the next token id, counting from 0, to owner.
func (r *Registry) Mint(owner string) uint32 {
	r.mu.Lock()
	id := r.counter
	r.owner = owner
	r.counter++
	r.mu.Unlock()

	if r.notifier != nil {
		tokenID := strconv.FormatUint(uint64(id), 10)
		r.notifier.Notify(events.Transfer, map[string]string{"from": "", "to": owner, "tokenId": tokenID})
		r.notifier.Notify(events.Minted, map[string]string{"tokenId": tokenID})
	}
	return id
}

// OwnerOf returns the owner of an issued token.
func (r *Registry) OwnerOf(id uint32) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id >= r.counter {
		return "", fmt.Errorf("%w: %d", ErrNoToken, id)
	}
	if r.owner == "" {
		return "", fmt.Errorf("%w: %d", ErrNotMinted, id)
	}
	return r.owner, nil
}

// BalanceOf is 1 for the current owner and 0 for anyone else, including the empty owner.
func (r *Registry) BalanceOf(owner string) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if owner != "" && owner == r.owner {
		return 1
	}
	return 0
}

// Count is the number of tokens issued so far.
func (r *Registry) Count() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counter
}

func (r *Registry) SupportsInterface(id uint32) bool {
	switch id {
	case InterfaceERC165, InterfaceERC721, InterfaceERC721Metadata:
		return true
	}
	return false
}
