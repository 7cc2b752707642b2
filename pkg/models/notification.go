package models

// Notification is a message from a backend service to the operator.
type Notification struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	NotificationType string `json:"notification_type,omitempty"`
	ActionTarget     string `json:"action_target,omitempty"`
	Read             bool   `json:"read"`
	Timestamp        string `json:"timestamp,omitempty"`
}

func (n Notification) EntityID() string { return n.ID }
