// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pcconv-go/internal/pipeline"
	"pcconv-go/internal/repository"
	"pcconv-go/internal/service"
	"pcconv-go/pkg/log"
)

// BatchHandler 负责处理批处理的提交和查询请求。
type BatchHandler struct {
	batchService service.BatchService
}

// NewBatchHandler 创建一个新的 BatchHandler 实例。
func NewBatchHandler(batchService service.BatchService) *BatchHandler {
	return &BatchHandler{batchService: batchService}
}

// SubmitBatchRequest 是提交批次的请求体，Files 为空时处理输入目录中的全部文件。
type SubmitBatchRequest struct {
	Files []string `json:"files"`
}

// Submit 提交一个后台批次。
func (h *BatchHandler) Submit(c *gin.Context) {
	var req SubmitBatchRequest
	// 允许空请求体
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "请求体格式错误", "data": nil})
			return
		}
	}

	batchID, err := h.batchService.Submit(req.Files)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBatchRunning):
			c.JSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "message": "已有批次正在运行", "data": nil})
		case errors.Is(err, pipeline.ErrConfiguration):
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": err.Error(), "data": nil})
		default:
			log.Error("SubmitBatch: failed", err)
			c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "提交批次失败", "data": nil})
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "批次已提交",
		"data":    gin.H{"batchId": batchID},
	})
}

// List 返回最近的批次历史，支持 ?limit=N。
func (h *BatchHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "limit 参数无效", "data": nil})
		return
	}
	batches, err := h.batchService.ListBatches(c.Request.Context(), limit)
	if err != nil {
		log.Error("ListBatches: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取批次列表失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": batches})
}

// Get 返回已完成批次的报告；批次仍在运行时返回实时进度。
func (h *BatchHandler) Get(c *gin.Context) {
	batchID := c.Param("id")
	report, err := h.batchService.GetBatch(c.Request.Context(), batchID)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": report})
		return
	}
	if !errors.Is(err, repository.ErrBatchNotFound) {
		log.Error("GetBatch: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取批次失败", "data": nil})
		return
	}

	progress, err := h.batchService.GetProgress(c.Request.Context(), batchID)
	if err != nil {
		if errors.Is(err, repository.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "批次不存在", "data": nil})
			return
		}
		log.Error("GetProgress: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取批次进度失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "running", "data": progress})
}

// Health 用于存活检查。
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": nil})
}
