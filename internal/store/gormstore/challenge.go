package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/EcoCampusLab/gamify/pkg/challenge"
	"gorm.io/gorm"
)

// ChallengeStore implements challenge.Store.
type ChallengeStore struct {
	db *gorm.DB
}

// NewChallengeStore returns a ChallengeStore backed by gorm.DB.
func NewChallengeStore(db *gorm.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *ChallengeStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore challenge.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &ChallengeStore{db: transaction})
	})
}

func (store *ChallengeStore) GetDefinition(ctx context.Context, challengeID string) (challenge.Definition, error) {
	var row ChallengeDefinition
	err := store.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return challenge.Definition{}, challenge.ErrChallengeNotFound
	}
	if err != nil {
		return challenge.Definition{}, wrapStoreError(errorSubjectChallenge, errorCodeLookup, err)
	}
	return mapRowToDefinition(row)
}

func (store *ChallengeStore) MarkExpired(ctx context.Context, challengeID string) error {
	err := store.db.WithContext(ctx).
		Model(&ChallengeDefinition{}).
		Where("challenge_id = ?", challengeID).
		Updates(map[string]interface{}{
			"status":     string(challenge.StatusExpired),
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectChallenge, errorCodeUpdate, err)
	}
	return nil
}

// AdjustParticipants shifts the participant counter, never below zero.
func (store *ChallengeStore) AdjustParticipants(ctx context.Context, challengeID string, delta int64) error {
	err := store.db.WithContext(ctx).
		Model(&ChallengeDefinition{}).
		Where("challenge_id = ?", challengeID).
		Updates(map[string]interface{}{
			"participants": gorm.Expr("CASE WHEN participants + ? < 0 THEN 0 ELSE participants + ? END", delta, delta),
			"updated_at":   time.Now().UTC(),
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectChallenge, errorCodeUpdate, err)
	}
	return nil
}

func (store *ChallengeStore) GetProgress(ctx context.Context, challengeID string, userID string) (challenge.Progress, bool, error) {
	var row ChallengeProgress
	err := store.db.WithContext(ctx).
		Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return challenge.Progress{}, false, nil
	}
	if err != nil {
		return challenge.Progress{}, false, wrapStoreError(errorSubjectProgress, errorCodeLookup, err)
	}
	return mapRowToProgress(row), true, nil
}

func (store *ChallengeStore) ListProgress(ctx context.Context, challengeID string) ([]challenge.Progress, error) {
	var rows []ChallengeProgress
	err := store.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("joined_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectProgress, errorCodeList, err)
	}
	records := make([]challenge.Progress, 0, len(rows))
	for _, row := range rows {
		records = append(records, mapRowToProgress(row))
	}
	return records, nil
}

func (store *ChallengeStore) InsertProgress(ctx context.Context, progress challenge.Progress) error {
	row := mapProgressToRow(progress)
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return challenge.ErrAlreadyJoined
	}
	if err != nil {
		return wrapStoreError(errorSubjectProgress, errorCodeInsert, err)
	}
	return nil
}

func (store *ChallengeStore) UpdateProgress(ctx context.Context, progress challenge.Progress) error {
	var completedAt *time.Time
	if progress.CompletedUnixUTC != 0 {
		value := time.Unix(progress.CompletedUnixUTC, 0).UTC()
		completedAt = &value
	}
	err := store.db.WithContext(ctx).
		Model(&ChallengeProgress{}).
		Where("challenge_id = ? AND user_id = ?", progress.ChallengeID, progress.UserID).
		Updates(map[string]interface{}{
			"status":         string(progress.Status),
			"completed_at":   completedAt,
			"reward_claimed": progress.RewardClaimed,
			"updated_at":     time.Now().UTC(),
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectProgress, errorCodeUpdate, err)
	}
	return nil
}

func (store *ChallengeStore) DeleteProgress(ctx context.Context, challengeID string, userID string) (bool, error) {
	result := store.db.WithContext(ctx).
		Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		Delete(&ChallengeProgress{})
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectProgress, errorCodeDelete, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func mapRowToDefinition(row ChallengeDefinition) (challenge.Definition, error) {
	challengeType, err := challenge.ParseType(row.Type)
	if err != nil {
		return challenge.Definition{}, wrapStoreError(errorSubjectChallenge, errorCodeInvalid, err)
	}
	return challenge.Definition{
		ChallengeID:  row.ChallengeID,
		Title:        row.Title,
		Type:         challengeType,
		Target:       row.Target,
		RewardPoints: row.RewardPoints,
		Status:       challenge.Status(row.Status),
		StartUnixUTC: row.StartAt.Unix(),
		EndUnixUTC:   row.EndAt.Unix(),
		Participants: row.Participants,
	}, nil
}

func mapRowToProgress(row ChallengeProgress) challenge.Progress {
	var completedUnix int64
	if row.CompletedAt != nil {
		completedUnix = row.CompletedAt.Unix()
	}
	return challenge.Progress{
		ProgressID:       row.ProgressID,
		ChallengeID:      row.ChallengeID,
		UserID:           row.UserID,
		Status:           challenge.ProgressStatus(row.Status),
		JoinedUnixUTC:    row.JoinedAt.Unix(),
		CompletedUnixUTC: completedUnix,
		RewardClaimed:    row.RewardClaimed,
	}
}

func mapProgressToRow(progress challenge.Progress) ChallengeProgress {
	var completedAt *time.Time
	if progress.CompletedUnixUTC != 0 {
		value := time.Unix(progress.CompletedUnixUTC, 0).UTC()
		completedAt = &value
	}
	joinedAt := time.Unix(progress.JoinedUnixUTC, 0).UTC()
	if progress.JoinedUnixUTC == 0 {
		joinedAt = time.Now().UTC()
	}
	return ChallengeProgress{
		ProgressID:    progress.ProgressID,
		ChallengeID:   progress.ChallengeID,
		UserID:        progress.UserID,
		Status:        string(progress.Status),
		JoinedAt:      joinedAt,
		CompletedAt:   completedAt,
		RewardClaimed: progress.RewardClaimed,
	}
}
