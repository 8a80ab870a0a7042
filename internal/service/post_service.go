package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/postsync/internal/model"
	"github.com/d60-Lab/postsync/internal/repository"
	"github.com/d60-Lab/postsync/pkg/logger"
)

const (
	listCacheKey = "posts:list"
	// 每次写入自增；List 仅在读库前后代数未变时回填缓存
	listGenKey = "posts:list:gen"
)

var errStaleFill = errors.New("posts list changed during read")

// PostService 帖子服务
type PostService interface {
	List(ctx context.Context) ([]*model.Post, error)
	Create(ctx context.Context, content string) (*model.Post, error)
	Update(ctx context.Context, id uint64, content string) (*model.Post, error)
	Delete(ctx context.Context, id uint64) error
}

type postService struct {
	repo  repository.PostRepository
	cache *redis.Client // 为 nil 时不使用缓存
	ttl   time.Duration
	now   func() time.Time
}

// NewPostService 创建帖子服务；cache 可为 nil
func NewPostService(repo repository.PostRepository, cache *redis.Client, ttl time.Duration) PostService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &postService{repo: repo, cache: cache, ttl: ttl, now: time.Now}
}

// List 读取全部帖子，优先命中 redis 列表缓存
func (s *postService) List(ctx context.Context) ([]*model.Post, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, listCacheKey).Bytes(); err == nil {
			var out []*model.Post
			if uErr := json.Unmarshal(data, &out); uErr == nil {
				return out, nil
			}
		}
	}

	var gen int64
	fill := false
	if s.cache != nil {
		g, err := s.generation(ctx, s.cache)
		if err == nil {
			gen, fill = g, true
		} else {
			logger.Warn("read posts cache generation failed", zap.Error(err))
		}
	}

	posts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if fill {
		s.fill(ctx, gen, posts)
	}
	return posts, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *postService) generation(ctx context.Context, c getter) (int64, error) {
	gen, err := c.Get(ctx, listGenKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// fill 写入列表缓存；若读库期间发生过写入（代数变化）则放弃
func (s *postService) fill(ctx context.Context, gen int64, posts []*model.Post) {
	payload, err := json.Marshal(posts)
	if err != nil {
		return
	}
	err = s.cache.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := s.generation(ctx, tx)
		if err != nil {
			return err
		}
		if cur != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, listCacheKey, payload, s.ttl)
			return nil
		})
		return err
	}, listGenKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		logger.Debug("skip stale posts cache fill")
	default:
		logger.Warn("cache posts list failed", zap.Error(err))
	}
}

// Create 创建帖子，内容不做非空校验
func (s *postService) Create(ctx context.Context, content string) (*model.Post, error) {
	now := s.now().UTC()
	post := &model.Post{Content: content, CreatedAt: now, UpdatedAt: now}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return post, nil
}

// Update 更新内容，CreatedAt 保持不变
func (s *postService) Update(ctx context.Context, id uint64, content string) (*model.Post, error) {
	post, err := s.repo.UpdateContent(ctx, id, content)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return post, nil
}

func (s *postService) Delete(ctx context.Context, id uint64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *postService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	// 先推进代数，使进行中的 List 放弃回填
	if err := s.cache.Incr(ctx, listGenKey).Err(); err != nil {
		logger.Warn("bump posts cache generation failed", zap.Error(err))
	}
	if err := s.cache.Del(ctx, listCacheKey).Err(); err != nil {
		logger.Warn("invalidate posts cache failed", zap.Error(err))
	}
}
