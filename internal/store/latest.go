package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"fleet-history-backend/internal/machine"
)

func (s *gormStore) LatestQuickCheck(ctx context.Context, machineID string) (*machine.QuickCheckRecord, error) {
	return latestEntry[machine.QuickCheckRecord](ctx, s, QuickCheckCollection, machineID)
}

func (s *gormStore) LatestEvent(ctx context.Context, machineID string) (*machine.Event, error) {
	return latestEntry[machine.Event](ctx, s, EventCollection, machineID)
}

// latestEntry reads element 0 of the history column without transferring the
// rest of the array. A machine with an empty history yields nil, nil.
func latestEntry[T any](ctx context.Context, s *gormStore, c Collection, machineID string) (*T, error) {
	query := fmt.Sprintf("SELECT %s FROM machines m WHERE m.id = ?", s.dialect.firstElement(c.Column))

	var entry sql.NullString
	err := s.db.WithContext(ctx).Raw(query, machineID).Row().Scan(&entry)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &machine.NotFoundError{Kind: "machine", ID: machineID}
	}
	if err != nil {
		return nil, &machine.PersistenceError{Op: "latest " + c.Name, Err: err}
	}
	if !entry.Valid || entry.String == "" || entry.String == "null" {
		return nil, nil
	}

	var item T
	if err := json.Unmarshal([]byte(entry.String), &item); err != nil {
		return nil, &machine.PersistenceError{Op: "decode " + c.Name, Err: err}
	}
	return &item, nil
}
