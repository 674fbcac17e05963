package postgres

import (
	"context"
	"database/sql"
	"errors"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/repository"
)

type propertyRepository struct {
	db    *sql.DB
	retry retryPolicy
}

func NewPropertyRepository(db *sql.DB) repository.PropertyRepository {
	return &propertyRepository{db: db, retry: defaultRetry}
}

func (r *propertyRepository) GetByID(ctx context.Context, id int32) (*domain.Property, error) {
	p := &domain.Property{}
	query := `SELECT id, owner_id, title, price, listing_type FROM properties WHERE id = $1`
	err := r.retry.do(ctx, "propertyRepository.GetByID", func() error {
		return r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.OwnerID, &p.Title, &p.Price, &p.ListingType)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.ErrNotFound, "property %d does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
