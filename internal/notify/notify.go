// Package notify builds the notifications shown to users, both for normal
// replies and for failures caught by the dispatcher.
package notify

import (
	"fmt"

	"popmap/internal/apperr"
	"popmap/internal/domain"
)

// GenericMessage is shown for any failure that was not classified.
const GenericMessage = "Something went wrong!"

// FromError converts a handler failure into a notification. Classified errors
// keep their message and status; everything else gets the generic message so
// internals never reach the user.
func FromError(err error) domain.Notification {
	status := apperr.KindInternal.Status()
	msg := GenericMessage

	if e, ok := apperr.As(err); ok {
		status = e.Status()
		msg = e.Error()
		if e.Kind == apperr.KindInternal && e.Message == "" {
			msg = GenericMessage
		}
	}

	return domain.Notification{
		Level:   domain.LevelError,
		Message: msg,
		Status:  status,
		Footer:  fmt.Sprintf("Status: %d", status),
	}
}

// Info builds a success notification. Title may be empty.
func Info(title, message string) domain.Notification {
	return domain.Notification{
		Level:   domain.LevelInfo,
		Title:   title,
		Message: message,
	}
}

// ErrorReply wraps FromError into an ephemeral reply.
func ErrorReply(err error) domain.Reply {
	return domain.Reply{
		Notifications: []domain.Notification{FromError(err)},
		Ephemeral:     true,
	}
}

// InfoReply is an ephemeral reply carrying a single info notification.
func InfoReply(title, message string, rows ...domain.ActionRow) domain.Reply {
	return domain.Reply{
		Notifications: []domain.Notification{Info(title, message)},
		Rows:          rows,
		Ephemeral:     true,
	}
}
