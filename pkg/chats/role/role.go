// Package role names the speakers of a conversation.
package role

// Role is the speaker of a message.
type Role string

const (
	// System carries instructions. Vendors that keep instructions outside the
	// message list fold these into their system field.
	System Role = "system"
	// User is the person talking to the model.
	User Role = "user"
	// Assistant is the model, or the character it plays.
	Assistant Role = "assistant"
)

// Valid reports whether r is System, User or Assistant.
func (r Role) Valid() bool {
	return r == System || r == User || r == Assistant
}

func (r Role) String() string { return string(r) }
