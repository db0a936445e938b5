package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/devhance_server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Ensure 已存在则不做修改
func (r *UserRepository) Ensure(ctx context.Context, id int64) error {
	return ensureUser(r.db.WithContext(ctx), id)
}

func ensureUser(db *gorm.DB, id int64) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.User{ID: id}).Error
}
