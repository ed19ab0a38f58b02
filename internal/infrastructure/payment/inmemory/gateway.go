package inmemorygateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/ports"
)

// Gateway is a PaymentGateway keeping the received funds in memory. Recipients
// can be marked as rejecting, in which case every payment to them fails. A
// payment id is credited at most once.
type Gateway interface {
	ports.PaymentGateway
	// Reject makes every following payment to recipient fail.
	Reject(recipient string)
	// Accept reverts Reject.
	Accept(recipient string)
	// OnReceive registers a hook run before a payment to recipient is
	// accepted. An error returned by the hook fails the payment, and so does
	// a hook still running when ctx is done.
	OnReceive(recipient string, hook func(ctx context.Context, amount *uint256.Int) error)
	BalanceOf(recipient string) *uint256.Int
}

type gateway struct {
	lock      *sync.RWMutex
	balances  map[string]*uint256.Int
	rejecting map[string]struct{}
	hooks     map[string]func(ctx context.Context, amount *uint256.Int) error
	delivered map[string]struct{}
	closed    bool
}

func NewGateway() Gateway {
	return &gateway{
		lock:      &sync.RWMutex{},
		balances:  make(map[string]*uint256.Int),
		rejecting: make(map[string]struct{}),
		hooks:     make(map[string]func(ctx context.Context, amount *uint256.Int) error),
		delivered: make(map[string]struct{}),
	}
}

func (g *gateway) Send(
	ctx context.Context, id, recipient string, amount *uint256.Int,
) error {
	g.lock.RLock()
	closed := g.closed
	_, rejecting := g.rejecting[recipient]
	_, delivered := g.delivered[id]
	hook := g.hooks[recipient]
	g.lock.RUnlock()

	if closed {
		return fmt.Errorf("gateway closed")
	}
	if delivered {
		return nil
	}
	if rejecting {
		return fmt.Errorf("recipient %s rejected payment", recipient)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// the hook runs unlocked so that it can call back into the gateway
	if hook != nil {
		if err := runHook(ctx, hook, new(uint256.Int).Set(amount)); err != nil {
			return err
		}
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	if _, ok := g.delivered[id]; ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	balance, ok := g.balances[recipient]
	if !ok {
		balance = new(uint256.Int)
		g.balances[recipient] = balance
	}
	if _, overflow := balance.AddOverflow(balance, amount); overflow {
		return fmt.Errorf("balance of %s overflows", recipient)
	}
	g.delivered[id] = struct{}{}
	return nil
}

func (g *gateway) Reject(recipient string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.rejecting[recipient] = struct{}{}
}

func (g *gateway) Accept(recipient string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	delete(g.rejecting, recipient)
}

func (g *gateway) OnReceive(
	recipient string, hook func(ctx context.Context, amount *uint256.Int) error,
) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if hook == nil {
		delete(g.hooks, recipient)
		return
	}
	g.hooks[recipient] = hook
}

func (g *gateway) BalanceOf(recipient string) *uint256.Int {
	g.lock.RLock()
	defer g.lock.RUnlock()
	balance, ok := g.balances[recipient]
	if !ok {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(balance)
}

func (g *gateway) Close() {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.closed = true
}

// runHook returns as soon as ctx is done, even if the hook ignores it.
func runHook(
	ctx context.Context,
	hook func(ctx context.Context, amount *uint256.Int) error,
	amount *uint256.Int,
) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- hook(ctx, amount)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
