package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/courselane/course_platform/internal/models"
)

// Ledger is the append-only record of course entitlements. A user is entitled
// to a course's full content exactly when a purchase row exists for the pair.
type Ledger struct {
	DB *gorm.DB
}

// Record appends one purchase row without any dedup.
func (l *Ledger) Record(ctx context.Context, userID, courseID uint, price float64) error {
	p := models.Purchase{UserID: userID, CourseID: courseID, Price: price}
	if err := l.DB.WithContext(ctx).Create(&p).Error; err != nil {
		return fmt.Errorf("record purchase: %w", err)
	}
	return nil
}

// Grant appends a purchase row unless one already exists for the pair. The
// unique index on (user_id, course_id) makes redelivered webhook events and
// repeated free-course claims insert nothing.
func (l *Ledger) Grant(ctx context.Context, userID, courseID uint, price float64) error {
	p := models.Purchase{UserID: userID, CourseID: courseID, Price: price}
	err := l.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoNothing: true,
		}).
		Create(&p).Error
	if err != nil {
		return fmt.Errorf("grant purchase: %w", err)
	}
	return nil
}

func (l *Ledger) IsEntitled(ctx context.Context, userID, courseID uint) (bool, error) {
	var count int64
	err := l.DB.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("entitlement lookup: %w", err)
	}
	return count > 0, nil
}

// ListEntitlements returns the ids of every course the user has purchased.
func (l *Ledger) ListEntitlements(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := l.DB.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("user_id = ?", userID).
		Pluck("course_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	return ids, nil
}
