package domain

import (
	"context"
	"errors"
	"sync"
	"time"
)

// EventKind tags what triggered an inbound event.
type EventKind string

const (
	KindCommand    EventKind = "command"     // slash command invoked
	KindButton     EventKind = "button"      // button clicked
	KindSelectMenu EventKind = "select_menu" // select menu option chosen
)

// ErrAlreadyResponded is returned when an event's initial reply has been used.
var ErrAlreadyResponded = errors.New("interaction already replied or deferred")

// ResponseType selects how the initial response to an event is delivered.
type ResponseType int

const (
	ResponseMessage ResponseType = iota + 1 // new message
	ResponseDeferred                        // "thinking..." placeholder
	ResponseUpdate                          // edit the message the component belongs to
)

// Responder is the transport behind an event's reply capability.
// Implementations send exactly what they are told; state tracking lives on Event.
type Responder interface {
	Respond(ctx context.Context, typ ResponseType, reply Reply) error
	FollowUp(ctx context.Context, reply Reply) error
}

// Event is a single inbound interaction received from the gateway.
// The gateway owns it until dispatch completes; handlers must not keep it.
type Event struct {
	ID         string
	Kind       EventKind
	Name       string            // command name (KindCommand)
	Options    map[string]string // command options (KindCommand)
	CustomID   string            // component custom ID (KindButton, KindSelectMenu)
	Values     []string          // selected values (KindSelectMenu)
	GuildID    string
	GuildName  string
	ChannelID  string
	UserID     string
	Username   string
	ReceivedAt time.Time

	responder Responder
	state     *replyState
}

type replyState struct {
	mu        sync.Mutex
	responded bool
}

// NewEvent wires an event to its responder.
func NewEvent(e Event, r Responder) *Event {
	e.responder = r
	e.state = &replyState{}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	return &e
}

// Option returns a command option by name.
func (e *Event) Option(name string) (string, bool) {
	v, ok := e.Options[name]
	return v, ok
}

// InGuild reports whether the event was sent from inside a community.
func (e *Event) InGuild() bool { return e.GuildID != "" }

// Responded reports whether the initial reply has been used (replied, deferred or updated).
func (e *Event) Responded() bool {
	if e.state == nil {
		return false
	}
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	return e.state.responded
}

// Reply sends the initial response as a new message.
func (e *Event) Reply(ctx context.Context, reply Reply) error {
	return e.respond(ctx, ResponseMessage, reply)
}

// Defer acknowledges the event without content; the answer follows with FollowUp.
func (e *Event) Defer(ctx context.Context, ephemeral bool) error {
	return e.respond(ctx, ResponseDeferred, Reply{Ephemeral: ephemeral})
}

// Update replaces the message the clicked component belongs to.
func (e *Event) Update(ctx context.Context, reply Reply) error {
	if e.Kind == KindCommand {
		return errors.New("commands cannot update a component message")
	}
	return e.respond(ctx, ResponseUpdate, reply)
}

// FollowUp sends an additional message after the initial response.
func (e *Event) FollowUp(ctx context.Context, reply Reply) error {
	if e.responder == nil {
		return errors.New("event has no responder")
	}
	return e.responder.FollowUp(ctx, reply)
}

// ReplyOrFollowUp uses the initial reply while it is still available and a follow-up afterwards.
func (e *Event) ReplyOrFollowUp(ctx context.Context, reply Reply) error {
	if err := e.Reply(ctx, reply); !errors.Is(err, ErrAlreadyResponded) {
		return err
	}
	return e.FollowUp(ctx, reply)
}

func (e *Event) respond(ctx context.Context, typ ResponseType, reply Reply) error {
	if e.responder == nil || e.state == nil {
		return errors.New("event has no responder")
	}

	e.state.mu.Lock()
	if e.state.responded {
		e.state.mu.Unlock()
		return ErrAlreadyResponded
	}
	e.state.responded = true
	e.state.mu.Unlock()

	// The slot stays consumed even when the transport fails: the gateway may
	// have accepted the response before the error surfaced.
	return e.responder.Respond(ctx, typ, reply)
}
