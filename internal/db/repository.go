package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Repository handles database operations for the notification subsystem
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UserGroups returns every group the user belongs to, most recently joined first
func (r *Repository) UserGroups(ctx context.Context, userID uuid.UUID) ([]*Group, error) {
	query := `
		SELECT g.id, g.name, g.type, g.created_at
		FROM group_members gm
		JOIN groups g ON g.id = gm.group_id
		WHERE gm.user_id = $1
		ORDER BY gm.joined_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query user groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Type, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, &g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return groups, nil
}

// GroupMembers returns a group's membership with user details
func (r *Repository) GroupMembers(ctx context.Context, groupID uuid.UUID) ([]*GroupMember, error) {
	query := `
		SELECT gm.group_id, gm.user_id, gm.role, gm.joined_at,
		       u.id, u.name, u.avatar_url, u.birthday, u.created_at
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY gm.joined_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	var members []*GroupMember
	for rows.Next() {
		var m GroupMember
		var u User
		if err := rows.Scan(
			&m.GroupID, &m.UserID, &m.Role, &m.JoinedAt,
			&u.ID, &u.Name, &u.AvatarURL, &u.Birthday, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		m.User = &u
		members = append(members, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return members, nil
}

// DailyPromptForDate returns the group's assigned prompt for a date,
// or nil when none is assigned yet
func (r *Repository) DailyPromptForDate(ctx context.Context, groupID uuid.UUID, date string) (*DailyPrompt, error) {
	query := `
		SELECT dp.id, dp.group_id, dp.prompt_id, dp.date, dp.user_id, dp.created_at,
		       p.id, p.question, p.category, p.dynamic_variables
		FROM daily_prompts dp
		JOIN prompts p ON p.id = dp.prompt_id
		WHERE dp.group_id = $1 AND dp.date = $2
	`

	var dp DailyPrompt
	var p Prompt
	err := r.db.Pool().QueryRow(ctx, query, groupID, date).Scan(
		&dp.ID, &dp.GroupID, &dp.PromptID, &dp.Date, &dp.UserID, &dp.CreatedAt,
		&p.ID, &p.Question, &p.Category, &p.DynamicVariables,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		r.logger.Error("failed to get daily prompt",
			zap.Error(err),
			zap.String("group_id", groupID.String()),
			zap.String("date", date),
		)
		return nil, fmt.Errorf("query daily prompt: %w", err)
	}

	dp.Prompt = &p
	return &dp, nil
}

// UserEntryForDate returns the user's entry in a group for a date,
// or nil when the user has not answered
func (r *Repository) UserEntryForDate(ctx context.Context, groupID, userID uuid.UUID, date string) (*Entry, error) {
	query := `
		SELECT id, group_id, user_id, date, created_at
		FROM entries
		WHERE group_id = $1 AND user_id = $2 AND date = $3
	`

	var e Entry
	err := r.db.Pool().QueryRow(ctx, query, groupID, userID, date).Scan(
		&e.ID, &e.GroupID, &e.UserID, &e.Date, &e.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("query user entry: %w", err)
	}

	return &e, nil
}

// EntriesByAuthor returns every entry the user has written, across all groups
func (r *Repository) EntriesByAuthor(ctx context.Context, userID uuid.UUID) ([]*Entry, error) {
	query := `
		SELECT id, group_id, user_id, date, created_at
		FROM entries
		WHERE user_id = $1
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query entries by author: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.GroupID, &e.UserID, &e.Date, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, nil
}

// EntryByID returns a single entry with its author, or nil when missing
func (r *Repository) EntryByID(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	query := `
		SELECT e.id, e.group_id, e.user_id, e.date, e.created_at,
		       u.id, u.name, u.avatar_url, u.birthday, u.created_at
		FROM entries e
		JOIN users u ON u.id = e.user_id
		WHERE e.id = $1
	`

	var e Entry
	var u User
	err := r.db.Pool().QueryRow(ctx, query, entryID).Scan(
		&e.ID, &e.GroupID, &e.UserID, &e.Date, &e.CreatedAt,
		&u.ID, &u.Name, &u.AvatarURL, &u.Birthday, &u.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("query entry: %w", err)
	}

	e.Author = &u
	return &e, nil
}

// CommentsOnEntrySince returns comments by others on an entry created
// strictly after the given time, most recent first
func (r *Repository) CommentsOnEntrySince(ctx context.Context, entryID, excludeUserID uuid.UUID, since time.Time) ([]*Comment, error) {
	query := `
		SELECT c.id, c.entry_id, c.user_id, c.created_at,
		       u.id, u.name, u.avatar_url, u.birthday, u.created_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.entry_id = $1 AND c.user_id <> $2 AND c.created_at > $3
		ORDER BY c.created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, entryID, excludeUserID, since)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		var c Comment
		var u User
		if err := rows.Scan(
			&c.ID, &c.EntryID, &c.UserID, &c.CreatedAt,
			&u.ID, &u.Name, &u.AvatarURL, &u.Birthday, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.User = &u
		comments = append(comments, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return comments, nil
}

// CommentsByUser returns the user's own comments (entry id and time only)
func (r *Repository) CommentsByUser(ctx context.Context, userID uuid.UUID) ([]*Comment, error) {
	query := `
		SELECT id, entry_id, user_id, created_at
		FROM comments
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query user comments: %w", err)
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.EntryID, &c.UserID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return comments, nil
}

// GroupEntriesSince returns entries by others in a group created strictly
// after the given time, most recent first, with authors
func (r *Repository) GroupEntriesSince(ctx context.Context, groupID, excludeUserID uuid.UUID, since time.Time) ([]*Entry, error) {
	query := `
		SELECT e.id, e.group_id, e.user_id, e.date, e.created_at,
		       u.id, u.name, u.avatar_url, u.birthday, u.created_at
		FROM entries e
		JOIN users u ON u.id = e.user_id
		WHERE e.group_id = $1 AND e.user_id <> $2 AND e.created_at > $3
		ORDER BY e.created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, groupID, excludeUserID, since)
	if err != nil {
		return nil, fmt.Errorf("query group entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var u User
		if err := rows.Scan(
			&e.ID, &e.GroupID, &e.UserID, &e.Date, &e.CreatedAt,
			&u.ID, &u.Name, &u.AvatarURL, &u.Birthday, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Author = &u
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, nil
}

// PendingDeckVotes returns deck votes open in a group that the user has
// not cast yet
func (r *Repository) PendingDeckVotes(ctx context.Context, groupID, userID uuid.UUID) ([]*DeckVote, error) {
	query := `
		SELECT dv.group_id, dv.deck_id, d.name, dv.requested_by, u.name, dv.created_at
		FROM group_deck_votes dv
		JOIN decks d ON d.id = dv.deck_id
		JOIN users u ON u.id = dv.requested_by
		WHERE dv.group_id = $1
		  AND dv.status = 'open'
		  AND NOT EXISTS (
			SELECT 1 FROM group_deck_vote_ballots b
			WHERE b.group_id = dv.group_id AND b.deck_id = dv.deck_id AND b.user_id = $2
		  )
		ORDER BY dv.created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("query pending deck votes: %w", err)
	}
	defer rows.Close()

	var votes []*DeckVote
	for rows.Next() {
		var v DeckVote
		if err := rows.Scan(&v.GroupID, &v.DeckID, &v.DeckName, &v.RequestedBy, &v.RequesterName, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deck vote: %w", err)
		}
		votes = append(votes, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return votes, nil
}

// MentionsForUser returns server-recorded mentions of the user
func (r *Repository) MentionsForUser(ctx context.Context, userID uuid.UUID) ([]*Mention, error) {
	query := `
		SELECT m.id, m.user_id, m.group_id, m.entry_id, u.name, m.created_at
		FROM mention_notifications m
		JOIN users u ON u.id = m.mentioned_by
		WHERE m.user_id = $1
		ORDER BY m.created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query mentions: %w", err)
	}
	defer rows.Close()

	var mentions []*Mention
	for rows.Next() {
		var m Mention
		if err := rows.Scan(&m.ID, &m.UserID, &m.GroupID, &m.EntryID, &m.MentionedByName, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		mentions = append(mentions, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return mentions, nil
}

// OpenBirthdayCards returns cards the user can still sign: cards in the
// user's groups for someone else, not yet published
func (r *Repository) OpenBirthdayCards(ctx context.Context, userID uuid.UUID) ([]*BirthdayCard, error) {
	query := `
		SELECT bc.id, bc.group_id, bc.birthday_user_id, u.name, bc.birthday_date, bc.created_at
		FROM birthday_cards bc
		JOIN users u ON u.id = bc.birthday_user_id
		JOIN group_members gm ON gm.group_id = bc.group_id AND gm.user_id = $1
		WHERE bc.birthday_user_id <> $1 AND bc.published_at IS NULL
		ORDER BY bc.created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query birthday cards: %w", err)
	}
	defer rows.Close()

	var cards []*BirthdayCard
	for rows.Next() {
		var c BirthdayCard
		if err := rows.Scan(&c.ID, &c.GroupID, &c.BirthdayUserID, &c.BirthdayUserName, &c.BirthdayDate, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan birthday card: %w", err)
		}
		cards = append(cards, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return cards, nil
}

// CustomQuestionWindows returns open custom-question opportunities for the
// user on the given date
func (r *Repository) CustomQuestionWindows(ctx context.Context, userID uuid.UUID, date string) ([]*CustomQuestionWindow, error) {
	query := `
		SELECT group_id, user_id, date, created_at
		FROM custom_question_windows
		WHERE user_id = $1 AND date = $2 AND fulfilled_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, date)
	if err != nil {
		return nil, fmt.Errorf("query custom question windows: %w", err)
	}
	defer rows.Close()

	var windows []*CustomQuestionWindow
	for rows.Next() {
		var w CustomQuestionWindow
		if err := rows.Scan(&w.GroupID, &w.UserID, &w.Date, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan custom question window: %w", err)
		}
		windows = append(windows, &w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return windows, nil
}

// NameUsages returns the usage log rows for a prompt/date/variable,
// earliest created first
func (r *Repository) NameUsages(ctx context.Context, promptID uuid.UUID, date, variableType string) ([]*NameUsage, error) {
	query := `
		SELECT id, prompt_id, group_id, date_used, variable_type, name_used, created_at
		FROM prompt_name_usage
		WHERE prompt_id = $1 AND date_used = $2 AND variable_type = $3
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, promptID, date, variableType)
	if err != nil {
		return nil, fmt.Errorf("query name usages: %w", err)
	}
	defer rows.Close()

	var usages []*NameUsage
	for rows.Next() {
		var nu NameUsage
		if err := rows.Scan(&nu.ID, &nu.PromptID, &nu.GroupID, &nu.DateUsed, &nu.VariableType, &nu.NameUsed, &nu.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan name usage: %w", err)
		}
		usages = append(usages, &nu)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return usages, nil
}

// RecentNameUsages returns the group's most recent usage rows for a
// variable type, newest first
func (r *Repository) RecentNameUsages(ctx context.Context, groupID uuid.UUID, variableType string, limit int) ([]*NameUsage, error) {
	query := `
		SELECT id, prompt_id, group_id, date_used, variable_type, name_used, created_at
		FROM prompt_name_usage
		WHERE group_id = $1 AND variable_type = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, groupID, variableType, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent name usages: %w", err)
	}
	defer rows.Close()

	var usages []*NameUsage
	for rows.Next() {
		var nu NameUsage
		if err := rows.Scan(&nu.ID, &nu.PromptID, &nu.GroupID, &nu.DateUsed, &nu.VariableType, &nu.NameUsed, &nu.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan name usage: %w", err)
		}
		usages = append(usages, &nu)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return usages, nil
}

// RecordNameUsage appends a usage row. The log is append-only; duplicate
// keys are resolved at read time by earliest created_at.
func (r *Repository) RecordNameUsage(ctx context.Context, nu *NameUsage) error {
	query := `
		INSERT INTO prompt_name_usage (id, prompt_id, group_id, date_used, variable_type, name_used)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		nu.ID, nu.PromptID, nu.GroupID, nu.DateUsed, nu.VariableType, nu.NameUsed,
	).Scan(&nu.CreatedAt)

	if err != nil {
		r.logger.Error("failed to record name usage",
			zap.Error(err),
			zap.String("prompt_id", nu.PromptID.String()),
			zap.String("date_used", nu.DateUsed),
		)
		return fmt.Errorf("insert name usage: %w", err)
	}

	return nil
}

// Memorials returns the remembered people attached to a group
func (r *Repository) Memorials(ctx context.Context, groupID uuid.UUID) ([]*Memorial, error) {
	query := `
		SELECT id, group_id, name, created_at
		FROM memorials
		WHERE group_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("query memorials: %w", err)
	}
	defer rows.Close()

	var memorials []*Memorial
	for rows.Next() {
		var m Memorial
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Name, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memorial: %w", err)
		}
		memorials = append(memorials, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return memorials, nil
}

// PushTokens returns the user's registered device tokens
func (r *Repository) PushTokens(ctx context.Context, userID uuid.UUID) ([]*PushToken, error) {
	query := `
		SELECT user_id, token, notifications_enabled, created_at
		FROM push_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query push tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*PushToken
	for rows.Next() {
		var t PushToken
		if err := rows.Scan(&t.UserID, &t.Token, &t.NotificationsEnabled, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan push token: %w", err)
		}
		tokens = append(tokens, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return tokens, nil
}

// GroupByID returns a group, or nil when missing
func (r *Repository) GroupByID(ctx context.Context, groupID uuid.UUID) (*Group, error) {
	query := `
		SELECT id, name, type, created_at
		FROM groups
		WHERE id = $1
	`

	var g Group
	err := r.db.Pool().QueryRow(ctx, query, groupID).Scan(
		&g.ID, &g.Name, &g.Type, &g.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("query group: %w", err)
	}

	return &g, nil
}

// UserByID returns a user, or nil when missing
func (r *Repository) UserByID(ctx context.Context, userID uuid.UUID) (*User, error) {
	query := `
		SELECT id, name, email, avatar_url, birthday, created_at
		FROM users
		WHERE id = $1
	`

	var u User
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&u.ID, &u.Name, &u.Email, &u.AvatarURL, &u.Birthday, &u.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &u, nil
}

// BirthdayCardByID returns a card regardless of published state, or nil
// when missing
func (r *Repository) BirthdayCardByID(ctx context.Context, cardID uuid.UUID) (*BirthdayCard, error) {
	query := `
		SELECT bc.id, bc.group_id, bc.birthday_user_id, u.name, bc.birthday_date, bc.created_at
		FROM birthday_cards bc
		JOIN users u ON u.id = bc.birthday_user_id
		WHERE bc.id = $1
	`

	var card BirthdayCard
	err := r.db.Pool().QueryRow(ctx, query, cardID).Scan(
		&card.ID, &card.GroupID, &card.BirthdayUserID, &card.BirthdayUserName,
		&card.BirthdayDate, &card.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("query birthday card: %w", err)
	}

	return &card, nil
}

// PublishBirthdayCard stamps published_at, closing the card for signing.
// Publishing an already-published card is a no-op and reports false.
func (r *Repository) PublishBirthdayCard(ctx context.Context, cardID uuid.UUID) (bool, error) {
	query := `
		UPDATE birthday_cards
		SET published_at = NOW()
		WHERE id = $1 AND published_at IS NULL
	`

	tag, err := r.db.Pool().Exec(ctx, query, cardID)
	if err != nil {
		return false, fmt.Errorf("publish birthday card: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
