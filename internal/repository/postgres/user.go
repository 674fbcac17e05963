package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/repository"
)

type userRepository struct {
	db    *sql.DB
	retry retryPolicy
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepository{db: db, retry: defaultRetry}
}

func (r *userRepository) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	u := &domain.User{}
	query := `SELECT id, email, name, role, created_on FROM users WHERE id = $1`
	var createdOn time.Time
	err := r.retry.do(ctx, "userRepository.GetByID", func() error {
		return r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &createdOn)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.ErrNotFound, "user %d does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	u.CreatedOn = createdOn.Format("2006-01-02")
	return u, nil
}
