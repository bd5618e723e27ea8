package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tirtha134/NoteApp-backend/internal/domain"
	"github.com/Tirtha134/NoteApp-backend/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository = (*Repository)(nil)
	_ repository.NoteRepository = (*Repository)(nil)
)

const uniqueViolation = "23505"

// CreateUser inserts a user. A unique-constraint violation on email or
// phone surfaces as repository.ErrDuplicate so concurrent registrations
// that pass the pre-check still resolve to exactly one winner.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, name, email, phone, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Name, user.Email, user.Phone, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUserByIdentifier fetches a user whose email or phone equals identifier.
func (r *Repository) GetUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	const query = `SELECT id, name, email, phone, password_hash, created_at
		FROM users WHERE email = $1 OR phone = $1`
	row := r.pool.QueryRow(ctx, query, identifier)
	return scanUser(row)
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, name, email, phone, password_hash, created_at
		FROM users WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanUser(row)
}

// UpdatePasswordHash replaces the stored hash for the given user.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id string, hash []byte) error {
	const query = `UPDATE users SET password_hash = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateNote inserts a note.
func (r *Repository) CreateNote(ctx context.Context, note *domain.Note) error {
	const query = `INSERT INTO notes (id, user_id, title, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, note.ID, note.UserID, note.Title, note.Description, note.CreatedAt, note.UpdatedAt)
	return err
}

// ListNotesByUser returns the user's notes, newest created first.
func (r *Repository) ListNotesByUser(ctx context.Context, userID string) ([]domain.Note, error) {
	const query = `SELECT id, user_id, title, description, created_at, updated_at
		FROM notes WHERE user_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := make([]domain.Note, 0)
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Description, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// UpdateNote rewrites title and description of a note matched by both id
// and owner. A non-owned or absent id returns repository.ErrNotFound.
func (r *Repository) UpdateNote(ctx context.Context, note *domain.Note) (*domain.Note, error) {
	const query = `UPDATE notes SET title = $3, description = $4, updated_at = $5
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, title, description, created_at, updated_at`
	row := r.pool.QueryRow(ctx, query, note.ID, note.UserID, note.Title, note.Description, note.UpdatedAt)
	var updated domain.Note
	if err := row.Scan(&updated.ID, &updated.UserID, &updated.Title, &updated.Description, &updated.CreatedAt, &updated.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

// DeleteNote removes a note matched by both id and owner.
func (r *Repository) DeleteNote(ctx context.Context, id, userID string) error {
	const query = `DELETE FROM notes WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
