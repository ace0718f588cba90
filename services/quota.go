// services/quota.go - Monthly completion quota for custom puzzles
package services

import (
	"fmt"
	"time"

	"github.com/mwasobaddy/Puzzle/database"
	"github.com/mwasobaddy/Puzzle/models"
)

// FreeMonthlyCompletionLimit is how many custom-puzzle completions a
// non-premium account gets per calendar month.
const FreeMonthlyCompletionLimit = 2

// QuotaService answers whether a user may record another custom-puzzle
// completion this month.
type QuotaService struct{}

// NewQuotaService creates a new quota service
func NewQuotaService() *QuotaService {
	return &QuotaService{}
}

// StartOfMonth returns midnight on the first day of t's month, in t's location.
// Completions at exactly this instant count toward the month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// QuotaExceeded reports whether a user with the given custom completion count
// this month is past the free limit. Premium accounts are never limited.
func QuotaExceeded(isPremium bool, count int64) bool {
	if isPremium {
		return false
	}
	return count >= FreeMonthlyCompletionLimit
}

// AllowCustomCompletion checks whether the user may record another custom
// puzzle completion at time now. Without a database handle the answer is
// always yes; quota is an accounting concern, not a gameplay one.
func (s *QuotaService) AllowCustomCompletion(userID uint, now time.Time) (bool, error) {
	db := database.GetDB()
	if db == nil {
		return true, nil
	}

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return false, fmt.Errorf("user not found: %w", err)
	}
	if user.IsPremium {
		return true, nil
	}

	var count int64
	err := db.Model(&models.CompletionRecord{}).
		Where("user_id = ? AND is_custom = ? AND completed_at >= ?", userID, true, StartOfMonth(now)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count completions: %w", err)
	}

	return !QuotaExceeded(user.IsPremium, count), nil
}

// MonthlyQuotaStatus is the REST-facing summary of a user's remaining quota.
type MonthlyQuotaStatus struct {
	IsPremium bool  `json:"is_premium"`
	Limit     int   `json:"limit"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

// GetQuotaStatus reports how much of the monthly custom-puzzle quota is left.
func (s *QuotaService) GetQuotaStatus(userID uint, now time.Time) (*MonthlyQuotaStatus, error) {
	db := database.GetDB()
	if db == nil {
		return &MonthlyQuotaStatus{Limit: FreeMonthlyCompletionLimit, Remaining: FreeMonthlyCompletionLimit}, nil
	}

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	var count int64
	err := db.Model(&models.CompletionRecord{}).
		Where("user_id = ? AND is_custom = ? AND completed_at >= ?", userID, true, StartOfMonth(now)).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count completions: %w", err)
	}

	status := &MonthlyQuotaStatus{
		IsPremium: user.IsPremium,
		Limit:     FreeMonthlyCompletionLimit,
		Used:      count,
	}
	if user.IsPremium {
		status.Remaining = -1 // unlimited
	} else {
		status.Remaining = int64(FreeMonthlyCompletionLimit) - count
		if status.Remaining < 0 {
			status.Remaining = 0
		}
	}
	return status, nil
}
