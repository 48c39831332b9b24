package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"support-chat-service/internal/models"
)

// ProfileRepository stores portal identity details for end users.
type ProfileRepository interface {
	Upsert(ctx context.Context, profile models.Profile) error
	Get(ctx context.Context, userID string) (models.Profile, error)
	ByUserIDs(ctx context.Context, userIDs []string) (map[string]models.Profile, error)
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// Upsert inserts or refreshes a profile row.
func (r *ProfileRepo) Upsert(ctx context.Context, profile models.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, email, pan_number) VALUES ($1, $2, $3)
         ON CONFLICT (user_id) DO UPDATE SET email = EXCLUDED.email, pan_number = EXCLUDED.pan_number`,
		profile.UserID, profile.Email, profile.PANNumber)
	return err
}

// Get returns a profile, or an empty profile when none exists. A missing
// profile is not an error: it just means no email is known yet.
func (r *ProfileRepo) Get(ctx context.Context, userID string) (models.Profile, error) {
	var profile models.Profile
	err := r.db.GetContext(ctx, &profile,
		`SELECT user_id, email, pan_number FROM profiles WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{UserID: userID}, nil
	}
	return profile, err
}

// ByUserIDs bulk-loads profiles keyed by user id.
func (r *ProfileRepo) ByUserIDs(ctx context.Context, userIDs []string) (map[string]models.Profile, error) {
	result := make(map[string]models.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT user_id, email, pan_number FROM profiles WHERE user_id IN (?)`, userIDs)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var profiles []models.Profile
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, err
	}
	for _, p := range profiles {
		result[p.UserID] = p
	}
	return result, nil
}
