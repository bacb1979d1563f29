package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/storehook/libs/db"
	"github.com/md-rashed-zaman/storehook/services/webhook-service/internal/storeapi"
)

type Repository struct {
	pool *db.Pool
	now  func() time.Time
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// Get loads the store's app data and credentials fresh from the database.
func (r *Repository) Get(ctx context.Context, storeID int64) (Tenant, error) {
	var (
		creds   credentials
		appData []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT authentication_id, access_token, access_token_expires_at, app_data
		FROM store_apps
		WHERE store_id = $1
	`, storeID).Scan(&creds.authenticationID, &creds.accessToken, &creds.expiresAt, &appData)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrUnauthenticated
		}
		return Tenant{}, fmt.Errorf("load store %d app data: %w", storeID, err)
	}
	if !creds.valid(r.now()) {
		return Tenant{}, ErrUnauthenticated
	}

	return Tenant{
		StoreID: storeID,
		Config:  ParseAppData(appData),
		Auth: storeapi.Auth{
			StoreID:          storeID,
			AuthenticationID: creds.authenticationID,
			AccessToken:      creds.accessToken,
		},
	}, nil
}
