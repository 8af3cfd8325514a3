package services

import (
	"context"
	"fmt"
	"time"

	"github.com/uniwave/calling/pkg/internal/cache"
	"github.com/uniwave/calling/pkg/internal/database"
	"github.com/uniwave/calling/pkg/internal/models"
)

const accountCacheTTL = 5 * time.Minute

func accountCacheKey(id uint) string {
	return fmt.Sprintf("profile#%d", id)
}

// GetAccount resolves one account profile, read-through a short-lived
// redis cache. Cache errors fall back to the database silently.
func GetAccount(id uint) (models.Account, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var account models.Account
	if cache.Rd != nil {
		if err := cache.Get(ctx, accountCacheKey(id), &account); err == nil {
			return account, nil
		}
	}

	if err := database.C.Where("id = ?", id).First(&account).Error; err != nil {
		return account, err
	}

	if cache.Rd != nil {
		_ = cache.Set(ctx, accountCacheKey(id), account, accountCacheTTL)
	}

	return account, nil
}

// FlushAccountCache drops the cached profile after an edit.
func FlushAccountCache(id uint) {
	if cache.Rd == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = cache.Delete(ctx, accountCacheKey(id))
}
