package toast

import "github.com/vango-dev/datastar/pkg/responder"

// EventName is the event name dispatched for toasts.
const EventName = "datastar:toast"

// Type represents the toast notification type.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

// Dispatcher is the part of *responder.Responder toasts need.
type Dispatcher interface {
	Dispatch(event string, payload any, opts responder.DispatchOptions) error
}

// Show dispatches a toast at level. The event detail is
// { level: "success|error|warning|info", message: "..." }.
func Show(d Dispatcher, level Type, message string) error {
	return d.Dispatch(EventName, map[string]any{
		"level":   string(level),
		"message": message,
	}, responder.DispatchOptions{})
}

// Success shows a success toast.
func Success(d Dispatcher, message string) error {
	return Show(d, TypeSuccess, message)
}

// Error shows an error toast.
func Error(d Dispatcher, message string) error {
	return Show(d, TypeError, message)
}

// Warning shows a warning toast.
func Warning(d Dispatcher, message string) error {
	return Show(d, TypeWarning, message)
}

// Info shows an info toast.
func Info(d Dispatcher, message string) error {
	return Show(d, TypeInfo, message)
}

// WithTitle shows a toast with a title and message.
//
//	toast.WithTitle(res, toast.TypeSuccess, "Settings", "Your changes have been saved.")
func WithTitle(d Dispatcher, level Type, title, message string) error {
	return d.Dispatch(EventName, map[string]any{
		"level":   string(level),
		"title":   title,
		"message": message,
	}, responder.DispatchOptions{})
}

// WithAction shows a toast carrying an action button. The page posts
// actionID back when the button is pressed.
func WithAction(d Dispatcher, level Type, message, actionLabel, actionID string) error {
	return d.Dispatch(EventName, map[string]any{
		"level":       string(level),
		"message":     message,
		"actionLabel": actionLabel,
		"actionID":    actionID,
	}, responder.DispatchOptions{})
}
