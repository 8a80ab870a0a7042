package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/postsync/internal/model"
	"github.com/d60-Lab/postsync/internal/repository"
	"github.com/d60-Lab/postsync/internal/testutil"
)

func TestPostService_WithoutCache(t *testing.T) {
	svc := NewPostService(repository.NewPostRepository(testutil.NewDB(t)), nil, 0)
	ctx := context.Background()

	created, err := svc.Create(ctx, "hello")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, time.UTC, created.CreatedAt.Location())

	updated, err := svc.Update(ctx, created.ID, "bye")
	require.NoError(t, err)
	assert.Equal(t, "bye", updated.Content)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	posts, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), repository.ErrPostNotFound)
}

func TestPostService_ListCache(t *testing.T) {
	rdb, mr := testutil.NewRedis(t)
	svc := NewPostService(repository.NewPostRepository(testutil.NewDB(t)), rdb, time.Minute)
	ctx := context.Background()

	first, err := svc.Create(ctx, "a")
	require.NoError(t, err)
	assert.False(t, mr.Exists(listCacheKey), "create must not leave a cached list")

	posts, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.True(t, mr.Exists(listCacheKey))
	assert.Equal(t, time.Minute, mr.TTL(listCacheKey))

	// a cache hit returns the same list
	again, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, posts[0].ID, again[0].ID)

	_, err = svc.Update(ctx, first.ID, "b")
	require.NoError(t, err)
	assert.False(t, mr.Exists(listCacheKey))

	posts, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", posts[0].Content)

	require.NoError(t, svc.Delete(ctx, first.ID))
	assert.False(t, mr.Exists(listCacheKey))

	posts, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestPostService_IgnoresCorruptCache(t *testing.T) {
	rdb, mr := testutil.NewRedis(t)
	svc := NewPostService(repository.NewPostRepository(testutil.NewDB(t)), rdb, time.Minute)
	ctx := context.Background()

	_, err := svc.Create(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, mr.Set(listCacheKey, "{not json"))

	posts, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestPostService_FailedWriteKeepsCache(t *testing.T) {
	rdb, mr := testutil.NewRedis(t)
	svc := NewPostService(repository.NewPostRepository(testutil.NewDB(t)), rdb, time.Minute)
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists(listCacheKey))

	_, err = svc.Update(ctx, 42, "x")
	assert.ErrorIs(t, err, repository.ErrPostNotFound)
	assert.True(t, mr.Exists(listCacheKey))
}

// pausingRepo blocks List after the rows are read until release is closed.
type pausingRepo struct {
	repository.PostRepository
	read    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *pausingRepo) List(ctx context.Context) ([]*model.Post, error) {
	posts, err := r.PostRepository.List(ctx)
	paused := false
	r.once.Do(func() { paused = true })
	if paused {
		close(r.read)
		<-r.release
	}
	return posts, err
}

func TestPostService_WriteDuringListSkipsStaleFill(t *testing.T) {
	rdb, mr := testutil.NewRedis(t)
	repo := &pausingRepo{
		PostRepository: repository.NewPostRepository(testutil.NewDB(t)),
		read:           make(chan struct{}),
		release:        make(chan struct{}),
	}
	svc := NewPostService(repo, rdb, time.Minute)
	ctx := context.Background()

	done := make(chan []*model.Post, 1)
	go func() {
		posts, err := svc.List(ctx)
		assert.NoError(t, err)
		done <- posts
	}()
	<-repo.read

	_, err := svc.Create(ctx, "new")
	require.NoError(t, err)
	close(repo.release)

	assert.Empty(t, <-done, "the paused list read ran before the create")
	assert.False(t, mr.Exists(listCacheKey), "stale snapshot must not be cached")

	posts, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "new", posts[0].Content)
}

func TestPostService_WritesBumpGeneration(t *testing.T) {
	rdb, mr := testutil.NewRedis(t)
	svc := NewPostService(repository.NewPostRepository(testutil.NewDB(t)), rdb, time.Minute)
	ctx := context.Background()

	p, err := svc.Create(ctx, "a")
	require.NoError(t, err)
	_, err = svc.Update(ctx, p.ID, "b")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, p.ID))

	gen, err := mr.Get(listGenKey)
	require.NoError(t, err)
	assert.Equal(t, "3", gen)
}
