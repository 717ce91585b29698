package domain

// Level is the presentation tone of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a user-facing message with a status.
type Notification struct {
	Level   Level
	Title   string
	Message string
	Status  int // HTTP-style status for errors, 0 for info
	Fields  []Field
	Footer  string
}

// Field is a named line inside a notification.
type Field struct {
	Name  string
	Value string
}

// Reply is the gateway-neutral content of a response.
type Reply struct {
	Content       string
	Notifications []Notification
	Rows          []ActionRow
	Ephemeral     bool
}

// ButtonStyle mirrors the small set of button styles the bot uses.
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonDanger
	ButtonLink
)

// Button is a clickable component. Link buttons carry a URL instead of a custom ID.
type Button struct {
	Label    string
	Style    ButtonStyle
	CustomID string
	URL      string
	Disabled bool
}

// MenuOption is a single choice in a select menu.
type MenuOption struct {
	Label       string
	Value       string
	Description string
}

// SelectMenu is a string select component.
type SelectMenu struct {
	CustomID    string
	Placeholder string
	Options     []MenuOption
}

// ActionRow holds either buttons or a single select menu.
type ActionRow struct {
	Buttons []Button
	Menu    *SelectMenu
}
