package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a notification variant. The set is closed; rendering
// code switches exhaustively over it.
type Kind string

const (
	KindNewQuestion               Kind = "new_question"
	KindReplyToEntry              Kind = "reply_to_entry"
	KindReplyToThread             Kind = "reply_to_thread"
	KindNewAnswers                Kind = "new_answers"
	KindDeckVoteRequested         Kind = "deck_vote_requested"
	KindMentionedInEntry          Kind = "mentioned_in_entry"
	KindBirthdayCard              Kind = "birthday_card"
	KindCustomQuestionOpportunity Kind = "custom_question_opportunity"
)

// Event is one row of the in-app notification list. Events are derived
// fresh on every aggregation pass and never persisted; the ID is stable
// across passes because it is built from the source row IDs.
//
// Occurrences carries the raw count of qualifying items behind the row
// (3 new comments collapse into one row with Occurrences=3). The badge
// sums occurrences; the list shows rows.
type Event struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"type"`
	GroupID     uuid.UUID `json:"group_id"`
	GroupName   string    `json:"group_name"`
	Occurrences int       `json:"-"`
	CreatedAt   time.Time `json:"created_at"`

	// new_question, custom_question_opportunity
	Date string `json:"date,omitempty"`

	// reply_to_entry, reply_to_thread, mentioned_in_entry
	EntryID            *uuid.UUID `json:"entry_id,omitempty"`
	CommentID          *uuid.UUID `json:"comment_id,omitempty"`
	CommenterName      string     `json:"commenter_name,omitempty"`
	CommenterAvatarURL *string    `json:"commenter_avatar_url,omitempty"`
	EntryAuthorName    string     `json:"entry_author_name,omitempty"`
	MentionedByName    string     `json:"mentioned_by_name,omitempty"`

	// new_answers
	AnswererNames []string `json:"answerer_names,omitempty"`

	// deck_vote_requested
	DeckID        *uuid.UUID `json:"deck_id,omitempty"`
	DeckName      string     `json:"deck_name,omitempty"`
	RequesterName string     `json:"requester_name,omitempty"`

	// birthday_card
	BirthdayUserName string `json:"birthday_user_name,omitempty"`
	BirthdayDate     string `json:"birthday_date,omitempty"`
}

// Validate checks the per-kind required fields. Unknown kinds are
// rejected so a new variant cannot slip through rendering unchecked.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event missing id")
	}
	if e.Occurrences < 1 {
		return fmt.Errorf("event %s: occurrences must be >= 1", e.ID)
	}

	switch e.Kind {
	case KindNewQuestion:
		if e.Date == "" {
			return fmt.Errorf("event %s: new_question requires date", e.ID)
		}
	case KindReplyToEntry:
		if e.EntryID == nil || e.CommenterName == "" {
			return fmt.Errorf("event %s: reply_to_entry requires entry and commenter", e.ID)
		}
	case KindReplyToThread:
		if e.EntryID == nil || e.CommenterName == "" || e.EntryAuthorName == "" {
			return fmt.Errorf("event %s: reply_to_thread requires entry, commenter and author", e.ID)
		}
	case KindNewAnswers:
		if len(e.AnswererNames) == 0 {
			return fmt.Errorf("event %s: new_answers requires answerer names", e.ID)
		}
	case KindDeckVoteRequested:
		if e.DeckID == nil || e.DeckName == "" {
			return fmt.Errorf("event %s: deck_vote_requested requires deck", e.ID)
		}
	case KindMentionedInEntry:
		if e.EntryID == nil || e.MentionedByName == "" {
			return fmt.Errorf("event %s: mentioned_in_entry requires entry and mentioner", e.ID)
		}
	case KindBirthdayCard:
		if e.BirthdayUserName == "" || e.BirthdayDate == "" {
			return fmt.Errorf("event %s: birthday_card requires birthday user and date", e.ID)
		}
	case KindCustomQuestionOpportunity:
		if e.Date == "" {
			return fmt.Errorf("event %s: custom_question_opportunity requires date", e.ID)
		}
	default:
		return fmt.Errorf("event %s: unknown kind %q", e.ID, e.Kind)
	}

	return nil
}

// FormatNames joins display names the way the UI copy expects:
// "Jaryd", "Jaryd and Rose", "Jaryd, Rose, and Emily".
func FormatNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}

	out := ""
	for _, name := range names[:len(names)-1] {
		out += name + ", "
	}
	return out + "and " + names[len(names)-1]
}
