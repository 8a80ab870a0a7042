package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/postsync/internal/repository"
	"github.com/d60-Lab/postsync/pkg/response"
)

// content 允许为空字符串，但字段必须出现
type createPostRequest struct {
	Content *string `json:"content" binding:"required"`
}

type updatePostRequest struct {
	ID      *uint64 `json:"id" binding:"required"`
	Content *string `json:"content" binding:"required"`
}

type deletePostRequest struct {
	ID *uint64 `json:"id" binding:"required"`
}

type deletePostResponse struct {
	ID uint64 `json:"id"`
}

// ListPosts 查询全部帖子
// @Summary 帖子列表
// @Tags 帖子
// @Produce json
// @Success 200 {array} model.Post
// @Failure 500 {object} response.Response
// @Router /api/posts [get]
func (h *Handler) ListPosts(c *gin.Context) {
	posts, err := h.postService.List(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, posts)
}

// CreatePost 发布帖子
// @Summary 发布帖子
// @Tags 帖子
// @Accept json
// @Produce json
// @Param request body createPostRequest true "帖子内容"
// @Success 201 {object} model.Post
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.postService.Create(c.Request.Context(), *req.Content)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, post)
}

// UpdatePost 编辑帖子
// @Summary 编辑帖子
// @Tags 帖子
// @Accept json
// @Produce json
// @Param request body updatePostRequest true "帖子ID与新内容"
// @Success 200 {object} model.Post
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/posts [put]
func (h *Handler) UpdatePost(c *gin.Context) {
	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.postService.Update(c.Request.Context(), *req.ID, *req.Content)
	if errors.Is(err, repository.ErrPostNotFound) {
		response.NotFound(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, post)
}

// DeletePost 删除帖子
// @Summary 删除帖子
// @Tags 帖子
// @Accept json
// @Produce json
// @Param request body deletePostRequest true "帖子ID"
// @Success 200 {object} deletePostResponse
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/posts [delete]
func (h *Handler) DeletePost(c *gin.Context) {
	var req deletePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	err := h.postService.Delete(c.Request.Context(), *req.ID)
	if errors.Is(err, repository.ErrPostNotFound) {
		response.NotFound(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, deletePostResponse{ID: *req.ID})
}

// Health 健康检查
// @Summary 健康检查
// @Tags 系统
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
