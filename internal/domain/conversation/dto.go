// internal/domain/conversation/dto.go
package conversation

type CommandRequest struct {
	Text           string  `json:"text" binding:"required"`
	ConversationID *string `json:"conversationId"`
}

// ConfirmRequest resolves a pending confirmation. Confirmed is a pointer so
// binding can tell an explicit false apart from a missing field.
type ConfirmRequest struct {
	ConversationID string        `json:"conversationId" binding:"required"`
	Confirmed      *bool         `json:"confirmed" binding:"required"`
	ActionType     string        `json:"actionType"`
	CustomerData   *CustomerData `json:"customerData"`
	FieldToEdit    string        `json:"fieldToEdit"`
}

type CommandResult struct {
	Response          string        `json:"response"`
	NeedsConfirmation bool          `json:"needsConfirmation,omitempty"`
	ActionType        string        `json:"actionType,omitempty"`
	ConversationID    string        `json:"conversationId,omitempty"`
	CustomerData      *CustomerData `json:"customerData,omitempty"`
	FieldToEdit       string        `json:"fieldToEdit,omitempty"`
	Data              interface{}   `json:"data,omitempty"`
}

type ConfirmResult struct {
	Response string      `json:"response"`
	Data     interface{} `json:"data,omitempty"`
}

type HealthResult struct {
	Status              string   `json:"status"`
	ActiveConversations []string `json:"activeConversations"`
	TotalConversations  int      `json:"totalConversations"`
}
