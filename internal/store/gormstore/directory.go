package gormstore

import (
	"context"

	"github.com/EcoCampusLab/gamify/pkg/leaderboard"
	"gorm.io/gorm"
)

// DirectoryStore implements leaderboard.AccountDirectory over the
// accounts table.
type DirectoryStore struct {
	db *gorm.DB
}

// NewDirectoryStore returns a DirectoryStore backed by gorm.DB.
func NewDirectoryStore(db *gorm.DB) *DirectoryStore {
	return &DirectoryStore{db: db}
}

func (store *DirectoryStore) Profiles(ctx context.Context, userIDs []string) (map[string]leaderboard.Profile, error) {
	profiles := make(map[string]leaderboard.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	var rows []Account
	err := store.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	for _, row := range rows {
		profiles[row.UserID] = leaderboard.Profile{
			Nickname: row.Nickname,
			VIP:      row.VIP,
		}
	}
	return profiles, nil
}
