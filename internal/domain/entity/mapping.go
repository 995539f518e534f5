package entity

import "time"

// IdentityMapping links an origin-system user to a messaging-channel recipient.
// Rows are deactivated, never deleted.
type IdentityMapping struct {
	ID               int64     `json:"id"`
	OriginSystemRef  string    `json:"origin_system_ref"`
	OriginUserRef    string    `json:"origin_user_ref"`
	OriginUserName   string    `json:"origin_user_name,omitempty"`
	OriginUserEmail  string    `json:"origin_user_email,omitempty"`
	ChannelRecipient string    `json:"channel_recipient"`
	ChannelUsername  string    `json:"channel_username,omitempty"`
	DisplayName      string    `json:"display_name,omitempty"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
