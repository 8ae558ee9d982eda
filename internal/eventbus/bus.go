// Package eventbus implements the named, priority-ordered channel system:
// arbitrary named channels with 0..9 listener priorities, rather than a
// fixed event vocabulary.
package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/pkg/simerrors"
)

// Event is an immutable record describing an occurrence on a channel.
type Event struct {
	Channel     string
	Phase       lifecycle.Phase
	CurrentTime time.Time
	NextStep    time.Duration
	Index       []uint64
	Payload     any
}

// Handler processes one event delivery.
type Handler func(ctx context.Context, event Event) error

// Subscription lets a caller stop receiving events.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	bus      *Bus
	channel  string
	id       uint64
	priority int
	owner    string
	handler  Handler
}

func (s *subscription) Unsubscribe() {
	s.bus.remove(s.channel, s.id)
}

// Bus dispatches events to priority-ordered listeners. Dispatch is
// synchronous and exception-propagating: the first handler error aborts
// delivery to every remaining listener, in that priority tier and in all
// later tiers, and is returned to the caller.
type Bus struct {
	mu        sync.Mutex
	lifecycle *lifecycle.Manager
	channels  map[string][]*subscription
	nextID    uint64
}

// New constructs a Bus. lifecycle is used to attribute each listener call
// to its subscribing component and to gate user-emitted custom events:
// Emit accepts a non-reserved channel only while some component hook is
// executing (see Emit).
func New(lifecycleMgr *lifecycle.Manager) *Bus {
	return &Bus{
		lifecycle: lifecycleMgr,
		channels:  make(map[string][]*subscription),
	}
}

// Subscribe registers handler on channel at priority (0..9, ascending =
// fires earlier). owner identifies the subscribing component and is used
// to track provenance during dispatch (see EnterComponent usage in
// dispatch).
func (b *Bus) Subscribe(channel string, priority int, owner string, handler Handler) (Subscription, error) {
	if priority < 0 || priority > 9 {
		return nil, simerrors.NewComponentContractError(owner, fmt.Sprintf("listener priority %d out of range [0,9]", priority), nil)
	}
	if handler == nil {
		return nil, simerrors.NewComponentContractError(owner, "nil event handler", nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{bus: b, channel: channel, id: b.nextID, priority: priority, owner: owner, handler: handler}
	b.channels[channel] = append(b.channels[channel], sub)
	sort.SliceStable(b.channels[channel], func(i, j int) bool {
		return b.channels[channel][i].priority < b.channels[channel][j].priority
	})

	return sub, nil
}

func (b *Bus) remove(channel string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.channels[channel]
	for i, s := range subs {
		if s.id == id {
			b.channels[channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) snapshot(channel string) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*subscription(nil), b.channels[channel]...)
}

// EmitFramework dispatches a reserved framework event. Only the Simulation
// Context should call this.
func (b *Bus) EmitFramework(ctx context.Context, channel string, event Event) error {
	if !IsReserved(channel) {
		return simerrors.NewComponentContractError("", fmt.Sprintf("channel %q is not a reserved framework channel", channel), nil)
	}
	return b.dispatch(ctx, channel, event)
}

// Emit dispatches a component-originated custom event. Reserved channel
// names are rejected. Emission is accepted only while a component hook is
// executing, i.e. while the lifecycle Manager records a current
// component; a call made when no hook is executing (such as a stored
// callback invoked between ticks) is rejected. The bus does not check
// which component is emitting: any hook on the call stack qualifies.
func (b *Bus) Emit(ctx context.Context, channel string, event Event) error {
	if IsReserved(channel) {
		return simerrors.NewComponentContractError(b.lifecycle.CurrentComponent(),
			fmt.Sprintf("channel %q is reserved for framework use", channel), nil)
	}
	if b.lifecycle.CurrentComponent() == "" {
		return simerrors.NewComponentContractError("", "custom events may only be emitted while a component hook is executing", nil)
	}
	return b.dispatch(ctx, channel, event)
}

func (b *Bus) dispatch(ctx context.Context, channel string, event Event) error {
	event.Channel = channel

	for _, sub := range b.snapshot(channel) {
		err := b.lifecycle.EnterComponent(sub.owner, func() error {
			return sub.handler(ctx, event)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
