package model

import "time"

// Post 帖子（服务端持久化模型）
type Post struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Content   string    `json:"content" gorm:"type:text;not null;default:''"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"-"`
}

func (Post) TableName() string { return "posts" }
