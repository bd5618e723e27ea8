package note

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/Tirtha134/NoteApp-backend/internal/domain"
	"github.com/Tirtha134/NoteApp-backend/internal/repository"
)

var (
	// ErrMissingFields is returned when title or description is empty after trimming.
	ErrMissingFields = errors.New("title and description are required")
	// ErrNotFound is returned for an absent note id, and equally for one
	// owned by a different user, so existence of other users' notes is
	// never leaked.
	ErrNotFound = errors.New("note not found")
)

// Service handles owner-scoped note workflows.
type Service struct {
	notes  repository.NoteRepository
	logger *slog.Logger
}

// New constructs a Service.
func New(notes repository.NoteRepository, logger *slog.Logger) Service {
	return Service{notes: notes, logger: logger}
}

// Add creates a note owned by userID.
func (s Service) Add(ctx context.Context, userID, title, description string) (*domain.Note, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || description == "" {
		return nil, ErrMissingFields
	}
	now := time.Now().UTC()
	n := &domain.Note{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.notes.CreateNote(ctx, n); err != nil {
		return nil, err
	}
	s.logger.Info("note added", "note_id", n.ID, "user_id", userID)
	return n, nil
}

// List returns the caller's notes, newest created first.
func (s Service) List(ctx context.Context, userID string) ([]domain.Note, error) {
	return s.notes.ListNotesByUser(ctx, userID)
}

// Update rewrites title and description of the caller's note.
func (s Service) Update(ctx context.Context, userID, id, title, description string) (*domain.Note, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || description == "" {
		return nil, ErrMissingFields
	}
	updated, err := s.notes.UpdateNote(ctx, &domain.Note{
		ID:          id,
		UserID:      userID,
		Title:       title,
		Description: description,
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.logger.Info("note updated", "note_id", id, "user_id", userID)
	return updated, nil
}

// Delete removes the caller's note.
func (s Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.notes.DeleteNote(ctx, id, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.logger.Info("note deleted", "note_id", id, "user_id", userID)
	return nil
}
