package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Playable states persisted for a video.
const (
	StatePending = "pending"
	StateReady   = "ready"
)

// StatePublisher records the final playable state of a video once its
// deliverables are durably stored.
type StatePublisher interface {
	PublishState(ctx context.Context, videoID string, stamp int64, state string, resolutions []int) error
}

type DatabaseService struct {
	db *sql.DB
}

func NewDatabaseService(databaseURL string) (*DatabaseService, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseService{db: db}, nil
}

// PublishState sets the video's upload state and the set of resolution
// heights that were produced. The stamp disambiguates re-recordings of the
// same video.
func (d *DatabaseService) PublishState(ctx context.Context, videoID string, stamp int64, state string, resolutions []int) error {
	heights := make([]int64, len(resolutions))
	for i, r := range resolutions {
		heights[i] = int64(r)
	}

	query := `UPDATE videos SET upload_state = $1, resolutions = $2, updated_at = $3 WHERE id = $4 AND stamp = $5`
	result, err := d.db.ExecContext(ctx, query, state, pq.Array(heights), time.Now(), videoID, stamp)
	if err != nil {
		return fmt.Errorf("failed to publish state for video %s: %w", videoID, err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("no video %s with stamp %d", videoID, stamp)
	}

	return nil
}

func (d *DatabaseService) Close() error {
	return d.db.Close()
}
