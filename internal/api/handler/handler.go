package handler

import (
	"github.com/d60-Lab/postsync/internal/service"
)

// Handler HTTP 处理器集合
type Handler struct {
	postService service.PostService
}

func NewHandler(postService service.PostService) *Handler {
	return &Handler{postService: postService}
}
