package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/logger"
	"property-ledger-backend/internal/repository"
)

type notificationRepository struct {
	db    *sql.DB
	retry retryPolicy
}

func NewNotificationRepository(db *sql.DB) repository.NotificationRepository {
	return &notificationRepository{db: db, retry: defaultRetry}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	logger.EnterMethod("notificationRepository.Create", "userID", n.UserID, "title", n.Title)

	attrs, err := json.Marshal(n.Attributes)
	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Create", err, "reason", "failed to marshal attributes")
		return err
	}

	query := `INSERT INTO notifications (user_id, title, message, is_read, attributes, created_on)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	n.CreatedOn = time.Now().Format("2006-01-02")
	err = r.retry.do(ctx, "notificationRepository.Create", func() error {
		logger.DatabaseCall("INSERT", "notifications", "userID", n.UserID)
		err := r.db.QueryRowContext(ctx, query, n.UserID, n.Title, n.Message, n.IsRead, attrs, n.CreatedOn).Scan(&n.ID)
		logger.DatabaseResult("INSERT", 1, err, "notificationID", n.ID)
		return err
	})

	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Create", err, "userID", n.UserID)
	} else {
		logger.ExitMethod("notificationRepository.Create", "notificationID", n.ID)
	}
	return err
}

func (r *notificationRepository) List(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error) {
	var count int32
	err := r.retry.do(ctx, "notificationRepository.Count", func() error {
		return r.db.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE user_id = $1`, userID).Scan(&count)
	})
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT id, user_id, title, message, is_read, attributes, created_on
	          FROM notifications WHERE user_id = $1 ORDER BY created_on DESC, id DESC LIMIT $2 OFFSET $3`
	var notes []domain.Notification
	err = r.retry.do(ctx, "notificationRepository.List", func() error {
		notes = nil
		rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n domain.Notification
			var attrs []byte
			var createdOn time.Time
			if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.IsRead, &attrs, &createdOn); err != nil {
				return err
			}
			n.CreatedOn = createdOn.Format("2006-01-02")
			if len(attrs) > 0 {
				if err := json.Unmarshal(attrs, &n.Attributes); err != nil {
					return err
				}
			}
			notes = append(notes, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return notes, count, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID int32) error {
	var affected int64
	err := r.retry.do(ctx, "notificationRepository.MarkAsRead", func() error {
		result, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.Errorf(domain.ErrNotFound, "notification %d not found for user %d", id, userID)
	}
	return nil
}
