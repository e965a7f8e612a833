package core

// Role of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation memory.
type Message struct {
	Role Role              `json:"role"`
	Text string            `json:"text"`
	Meta map[string]string `json:"meta,omitempty"`
}

// NewUserMessage is a shortcut for a user message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// NewAssistantMessage is a shortcut for an assistant message.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}
