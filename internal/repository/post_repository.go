package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/d60-Lab/postsync/internal/model"
)

// ErrPostNotFound 帖子不存在
var ErrPostNotFound = errors.New("post not found")

// PostRepository 帖子仓储接口
type PostRepository interface {
	// List 按插入顺序（id 升序）返回全部帖子
	List(ctx context.Context) ([]*model.Post, error)

	// Get 根据 ID 查询帖子
	Get(ctx context.Context, id uint64) (*model.Post, error)

	// Create 创建帖子，ID 与 CreatedAt 由数据库/仓储填充
	Create(ctx context.Context, post *model.Post) error

	// UpdateContent 更新内容并返回最新记录
	UpdateContent(ctx context.Context, id uint64, content string) (*model.Post, error)

	// Delete 删除帖子
	Delete(ctx context.Context, id uint64) error
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository 创建帖子仓储
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// InitSchema 初始化表结构
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Post{}); err != nil {
		return fmt.Errorf("failed to migrate posts table: %w", err)
	}
	return nil
}

func (r *postRepository) List(ctx context.Context) ([]*model.Post, error) {
	posts := make([]*model.Post, 0)
	err := r.db.WithContext(ctx).Order("id ASC").Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) Get(ctx context.Context, id uint64) (*model.Post, error) {
	var post model.Post
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) UpdateContent(ctx context.Context, id uint64, content string) (*model.Post, error) {
	var post model.Post
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Post{}).Where("id = ?", id).Update("content", content)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPostNotFound
		}
		return tx.Where("id = ?", id).First(&post).Error
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Delete(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Post{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPostNotFound
	}
	return nil
}
