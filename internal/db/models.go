package db

import (
	"time"

	"github.com/google/uuid"
)

// User represents an app user
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Birthday  *string   `json:"birthday,omitempty"` // YYYY-MM-DD
	CreatedAt time.Time `json:"created_at"`
}

// Group represents a journaling group
type Group struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // family | friends
	CreatedAt time.Time `json:"created_at"`
}

// GroupMember links a user to a group
type GroupMember struct {
	GroupID  uuid.UUID `json:"group_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
	User     *User     `json:"user,omitempty"`
}

// Prompt is a daily question template, possibly carrying a
// {member_name} or {memorial_name} variable.
type Prompt struct {
	ID               uuid.UUID `json:"id"`
	Question         string    `json:"question"`
	Category         string    `json:"category"`
	DynamicVariables []string  `json:"dynamic_variables,omitempty"`
}

// DailyPrompt is a prompt assigned to a group for a calendar date
type DailyPrompt struct {
	ID        uuid.UUID  `json:"id"`
	GroupID   uuid.UUID  `json:"group_id"`
	PromptID  uuid.UUID  `json:"prompt_id"`
	Date      string     `json:"date"` // YYYY-MM-DD
	UserID    *uuid.UUID `json:"user_id,omitempty"` // set for user-specific prompts (birthdays)
	CreatedAt time.Time  `json:"created_at"`
	Prompt    *Prompt    `json:"prompt,omitempty"`
}

// Entry is a user's submitted answer to a prompt on a given date
type Entry struct {
	ID        uuid.UUID `json:"id"`
	GroupID   uuid.UUID `json:"group_id"`
	UserID    uuid.UUID `json:"user_id"`
	Date      string    `json:"date"` // YYYY-MM-DD
	CreatedAt time.Time `json:"created_at"`
	Author    *User     `json:"author,omitempty"`
}

// Comment is a reply on an entry
type Comment struct {
	ID        uuid.UUID `json:"id"`
	EntryID   uuid.UUID `json:"entry_id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	User      *User     `json:"user,omitempty"`
}

// DeckVote is a pending vote on adding a question deck to a group
type DeckVote struct {
	GroupID       uuid.UUID `json:"group_id"`
	DeckID        uuid.UUID `json:"deck_id"`
	DeckName      string    `json:"deck_name"`
	RequestedBy   uuid.UUID `json:"requested_by"`
	RequesterName string    `json:"requester_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// Mention is a server-recorded row noting a user was mentioned in an entry
type Mention struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	GroupID         uuid.UUID `json:"group_id"`
	EntryID         uuid.UUID `json:"entry_id"`
	MentionedByName string    `json:"mentioned_by_name"`
	CreatedAt       time.Time `json:"created_at"`
}

// BirthdayCard is an open card a user can sign for a group member
type BirthdayCard struct {
	ID               uuid.UUID `json:"id"`
	GroupID          uuid.UUID `json:"group_id"`
	BirthdayUserID   uuid.UUID `json:"birthday_user_id"`
	BirthdayUserName string    `json:"birthday_user_name"`
	BirthdayDate     string    `json:"birthday_date"` // YYYY-MM-DD
	CreatedAt        time.Time `json:"created_at"`
}

// CustomQuestionWindow is an open opportunity for a user to submit
// their own question for a group
type CustomQuestionWindow struct {
	GroupID   uuid.UUID `json:"group_id"`
	UserID    uuid.UUID `json:"user_id"`
	Date      string    `json:"date"` // YYYY-MM-DD
	CreatedAt time.Time `json:"created_at"`
}

// Variable type constants for prompt personalization
const (
	VariableMemberName   = "member_name"
	VariableMemorialName = "memorial_name"
)

// NameUsage is an append-only record of which concrete name was
// substituted into a prompt variable on a given date
type NameUsage struct {
	ID           uuid.UUID `json:"id"`
	PromptID     uuid.UUID `json:"prompt_id"`
	GroupID      uuid.UUID `json:"group_id"`
	DateUsed     string    `json:"date_used"` // YYYY-MM-DD
	VariableType string    `json:"variable_type"`
	NameUsed     string    `json:"name_used"`
	CreatedAt    time.Time `json:"created_at"`
}

// Memorial is a remembered person attached to a group
type Memorial struct {
	ID        uuid.UUID `json:"id"`
	GroupID   uuid.UUID `json:"group_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// PushToken is a device token registered for push notifications
type PushToken struct {
	UserID               uuid.UUID `json:"user_id"`
	Token                string    `json:"token"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at"`
}
