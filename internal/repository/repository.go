package repository

import (
	"context"

	"github.com/Tirtha134/NoteApp-backend/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	// GetUserByIdentifier matches either the email or the phone column.
	GetUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, id string, hash []byte) error
}

// NoteRepository persists notes. Every read and write is scoped by the
// owning user id; an id belonging to another user behaves like a miss.
type NoteRepository interface {
	CreateNote(ctx context.Context, note *domain.Note) error
	ListNotesByUser(ctx context.Context, userID string) ([]domain.Note, error)
	UpdateNote(ctx context.Context, note *domain.Note) (*domain.Note, error)
	DeleteNote(ctx context.Context, id, userID string) error
}
