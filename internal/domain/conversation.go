package domain

import "time"

// MaxMessages bounds the history kept per conversation. Older messages are
// dropped first.
const MaxMessages = 20

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is a single conversation entry. It is never modified after creation.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// ConversationContext is the per-session conversational state carried
// across turns.
type ConversationContext struct {
	SessionID         string           `json:"session_id"`
	Messages          []Message        `json:"messages"`
	SelectedVehicle   *VehicleSummary  `json:"selected_vehicle,omitempty"`
	LastSearchResults []VehicleSummary `json:"last_search_results"`
	LastAction        string           `json:"last_action,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`

	now func() time.Time
}

// NewConversationContext returns an empty context for sessionID stamped
// with now.
func NewConversationContext(sessionID string, now time.Time) *ConversationContext {
	return &ConversationContext{
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetClock overrides the time source used to stamp mutations.
func (c *ConversationContext) SetClock(now func() time.Time) {
	c.now = now
}

// Touch moves UpdatedAt forward to t. UpdatedAt never moves backwards.
func (c *ConversationContext) Touch(t time.Time) {
	if t.After(c.UpdatedAt) {
		c.UpdatedAt = t
	}
}

func (c *ConversationContext) touch() time.Time {
	now := time.Now()
	if c.now != nil {
		now = c.now()
	}
	c.Touch(now)
	return now
}

func (c *ConversationContext) AddMessage(role MessageRole, content string) {
	now := c.touch()
	c.Messages = append(c.Messages, Message{Role: role, Content: content, CreatedAt: now})
	if over := len(c.Messages) - MaxMessages; over > 0 {
		c.Messages = append([]Message(nil), c.Messages[over:]...)
	}
}

func (c *ConversationContext) AddUserMessage(content string) {
	c.AddMessage(RoleUser, content)
}

func (c *ConversationContext) AddAssistantMessage(content string) {
	c.AddMessage(RoleAssistant, content)
}

func (c *ConversationContext) SelectVehicle(v VehicleSummary) {
	c.SelectedVehicle = &v
	c.touch()
}

// SelectVehicleByStockID selects a vehicle from the last search results.
// It reports false when stockID is not among them.
func (c *ConversationContext) SelectVehicleByStockID(stockID int) bool {
	for _, v := range c.LastSearchResults {
		if v.StockID == stockID {
			c.SelectVehicle(v)
			return true
		}
	}
	return false
}

func (c *ConversationContext) ClearSelection() {
	c.SelectedVehicle = nil
	c.touch()
}

func (c *ConversationContext) SetSearchResults(vehicles []VehicleSummary) {
	c.LastSearchResults = append([]VehicleSummary(nil), vehicles...)
	c.touch()
}

// HasReference reports whether a dangling reference such as "the first one"
// can be resolved against this context.
func (c *ConversationContext) HasReference() bool {
	return c.SelectedVehicle != nil || len(c.LastSearchResults) > 0
}

// PriorMessages returns the history without the message of the current turn.
func (c *ConversationContext) PriorMessages() []Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[:len(c.Messages)-1]
}

// Clone returns a deep copy that shares no mutable memory with c.
func (c *ConversationContext) Clone() *ConversationContext {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	out.LastSearchResults = append([]VehicleSummary(nil), c.LastSearchResults...)
	if c.SelectedVehicle != nil {
		v := *c.SelectedVehicle
		out.SelectedVehicle = &v
	}
	return &out
}
