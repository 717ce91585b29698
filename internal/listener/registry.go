// Package listener holds the predicate-gated handlers for component events.
//
// Many listeners share an event kind; each declares the action identifier tags
// it claims so that ownership can be checked when the registry is built
// instead of being left to registration order.
package listener

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"

	"popmap/internal/customid"
	"popmap/internal/domain"
)

// Listener is a two-phase handler. Check decides ownership and derives the
// value passed to Execute; it must not reply to the event.
type Listener struct {
	// Name identifies the handler in logs. Defaults to the joined tags.
	Name string
	Kind domain.EventKind
	// Once removes the listener after its first successful claim.
	Once bool
	// Tags are the action identifier types the listener claims. A listener
	// without tags is the catch-all of its kind.
	Tags    []customid.Type
	Check   func(ctx context.Context, ev *domain.Event) (any, bool)
	Execute func(ctx context.Context, ev *domain.Event, data any) error

	fired *atomic.Bool
}

// ForTag builds a listener owning exactly one identifier type. Check decodes
// the event's custom ID and accepts it when the payload is a T.
func ForTag[T customid.Payload](kind domain.EventKind, execute func(ctx context.Context, ev *domain.Event, data T) error) Listener {
	var zero T
	tag := zero.ActionType()
	return Listener{
		Name: string(tag),
		Kind: kind,
		Tags: []customid.Type{tag},
		Check: func(_ context.Context, ev *domain.Event) (any, bool) {
			p, err := customid.Decode(ev.CustomID)
			if err != nil {
				return nil, false
			}
			v, ok := p.(T)
			return v, ok
		},
		Execute: func(ctx context.Context, ev *domain.Event, data any) error {
			return execute(ctx, ev, data.(T))
		},
	}
}

// Registry groups listeners by event kind in registration order.
// It is immutable after NewRegistry returns apart from Once bookkeeping.
type Registry struct {
	byKind map[domain.EventKind][]*Listener
	total  int
}

// NewRegistry validates and groups the listeners.
func NewRegistry(logger *slog.Logger, listeners ...Listener) (*Registry, error) {
	r := &Registry{byKind: make(map[domain.EventKind][]*Listener)}

	owners := make(map[domain.EventKind]map[customid.Type]string)
	catchAll := make(map[domain.EventKind]string)

	for i := range listeners {
		l := listeners[i]
		if l.Name == "" {
			l.Name = listenerName(l)
		}
		if err := validate(l); err != nil {
			return nil, err
		}

		if len(l.Tags) == 0 {
			if prev, ok := catchAll[l.Kind]; ok {
				return nil, fmt.Errorf("listeners %q and %q are both catch-all for %s events", prev, l.Name, l.Kind)
			}
			catchAll[l.Kind] = l.Name
		}
		if owners[l.Kind] == nil {
			owners[l.Kind] = make(map[customid.Type]string)
		}
		for _, tag := range l.Tags {
			if prev, ok := owners[l.Kind][tag]; ok {
				return nil, fmt.Errorf("listeners %q and %q both claim %q for %s events", prev, l.Name, tag, l.Kind)
			}
			owners[l.Kind][tag] = l.Name
		}

		l.fired = new(atomic.Bool)
		r.byKind[l.Kind] = append(r.byKind[l.Kind], &l)
		r.total++
		if logger != nil {
			logger.Debug("registered listener", "name", l.Name, "kind", l.Kind, "once", l.Once)
		}
	}
	return r, nil
}

func validate(l Listener) error {
	switch {
	case l.Kind == "":
		return fmt.Errorf("malformed listener %q: missing event kind", l.Name)
	case l.Kind == domain.KindCommand:
		return fmt.Errorf("malformed listener %q: commands are routed by name, not by listeners", l.Name)
	case l.Check == nil || l.Execute == nil:
		return fmt.Errorf("malformed listener %q: check and execute are required", l.Name)
	}
	return nil
}

func listenerName(l Listener) string {
	if len(l.Tags) == 0 {
		return string(l.Kind) + ":*"
	}
	tags := make([]string, len(l.Tags))
	for i, t := range l.Tags {
		tags[i] = string(t)
	}
	return strings.Join(tags, ",")
}

// ResolveAll yields the live listeners of a kind in registration order.
// Every call starts a fresh pass.
func (r *Registry) ResolveAll(kind domain.EventKind) iter.Seq[*Listener] {
	return func(yield func(*Listener) bool) {
		for _, l := range r.byKind[kind] {
			if l.Once && l.fired.Load() {
				continue
			}
			if !yield(l) {
				return
			}
		}
	}
}

// Claim records that l is about to execute. It returns false when l is a
// Once listener that another event already claimed.
func (r *Registry) Claim(l *Listener) bool {
	if !l.Once {
		return true
	}
	return l.fired.CompareAndSwap(false, true)
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int { return r.total }

// Kinds returns the kinds that have at least one listener.
func (r *Registry) Kinds() []domain.EventKind {
	kinds := make([]domain.EventKind, 0, len(r.byKind))
	for k := range r.byKind {
		kinds = append(kinds, k)
	}
	return kinds
}
