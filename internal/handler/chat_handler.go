package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"doc-chat-go/internal/service"
	"doc-chat-go/pkg/apperr"
	"doc-chat-go/pkg/log"
)

// ChatHandler 负责处理问答与会话历史请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// QueryRequest 定义了问答 API 的请求体结构。
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
}

// Query 处理一次完整的问答请求：检索、提示词组装与答案生成。
func (h *ChatHandler) Query(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[ChatHandler] Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：query 不能为空"})
		return
	}

	answer, err := h.chatService.Answer(c.Request.Context(), req.Query, user.Namespace)
	if err != nil {
		if apperr.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Errorf("[ChatHandler] 问答失败, query: '%s', error: %v", req.Query, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法处理本次请求"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"query":  req.Query,
			"answer": answer,
		},
	})
}

// History 返回当前用户的会话历史。
func (h *ChatHandler) History(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	history, err := h.chatService.History(c.Request.Context(), user.Namespace)
	if err != nil {
		log.Errorf("[ChatHandler] 查询会话历史失败, namespace: %s, error: %v", user.Namespace, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询会话历史失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": history, "message": "success"})
}
