package models

// User is the identity returned by the session check.
type User struct {
	Sub               string `json:"sub"`
	Role              string `json:"chord_user_role"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
}

func (u User) EntityID() string { return u.Sub }

// IsOwner reports whether the user may manage the node.
func (u User) IsOwner() bool { return u.Role == "owner" }
