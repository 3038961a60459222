// Package http 提供加密货币行情的 Gin HTTP 接口
// 失败响应统一为 domain.ErrorResult
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/application"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/domain"
	"github.com/wyfcoding/cryptoquote/pkg/logger"
	"github.com/wyfcoding/cryptoquote/pkg/ratelimit"
)

// Handler HTTP 处理器
// 负责处理与加密货币行情相关的 HTTP 请求
type Handler struct {
	quoteService *application.CryptoQuoteApplicationService
	stream       gin.HandlerFunc
}

// NewHandler 创建 HTTP 处理器实例
// stream 为行情推送的 WebSocket 处理器，可为 nil
func NewHandler(quoteService *application.CryptoQuoteApplicationService, stream gin.HandlerFunc) *Handler {
	return &Handler{
		quoteService: quoteService,
		stream:       stream,
	}
}

// GetCryptoQuote 获取最新行情
// @Summary 获取最新行情
// @Tags Crypto Quote
// @Param pair query string true "交易对"
// @Success 200 {object} QuoteResponse
// @Failure 400 {object} domain.ErrorResult
// @Failure 404 {object} domain.ErrorResult
// @Router /api/v1/crypto-quotes/quote [get]
func (h *Handler) GetCryptoQuote(c *gin.Context) {
	ctx := c.Request.Context()
	req := &application.GetCryptoQuoteRequest{Pair: c.Query("pair")}

	result, err := h.quoteService.GetCryptoQuote(ctx, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, QuoteResponse{Data: *result})
}

// GetCryptoQuoteHistory 获取历史行情
// @Summary 获取历史行情
// @Tags Crypto Quote
// @Param pair query string true "交易对"
// @Param start_time query int64 true "开始时间（毫秒）"
// @Param end_time query int64 true "结束时间（毫秒）"
// @Success 200 {object} HistoryResponse
// @Failure 400 {object} domain.ErrorResult
// @Router /api/v1/crypto-quotes/history [get]
func (h *Handler) GetCryptoQuoteHistory(c *gin.Context) {
	ctx := c.Request.Context()

	startTime, err := strconv.ParseInt(c.Query("start_time"), 10, 64)
	if err != nil {
		logger.Warn(ctx, "Invalid start_time", "start_time", c.Query("start_time"))
		c.JSON(http.StatusBadRequest, domain.NewErrorResult(domain.CodeParamsError, "Invalid request", "start_time must be a valid int64 timestamp"))
		return
	}
	endTime, err := strconv.ParseInt(c.Query("end_time"), 10, 64)
	if err != nil {
		logger.Warn(ctx, "Invalid end_time", "end_time", c.Query("end_time"))
		c.JSON(http.StatusBadRequest, domain.NewErrorResult(domain.CodeParamsError, "Invalid request", "end_time must be a valid int64 timestamp"))
		return
	}

	quotes, err := h.quoteService.GetCryptoQuoteHistory(ctx, c.Query("pair"), startTime, endTime)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{Data: quotes})
}

// SaveCryptoQuote 接收一条行情
// @Summary 保存行情
// @Tags Crypto Quote
// @Param body body domain.CryptoQuote true "行情"
// @Success 201 {object} SavedResponse
// @Failure 400 {object} domain.ErrorResult
// @Router /api/v1/crypto-quotes/quote [post]
func (h *Handler) SaveCryptoQuote(c *gin.Context) {
	ctx := c.Request.Context()

	var body domain.CryptoQuote
	if err := c.ShouldBindJSON(&body); err != nil {
		logger.Warn(ctx, "Invalid crypto quote body", "error", err)
		c.JSON(http.StatusBadRequest, domain.NewErrorResult(domain.CodeParamsError, "Invalid request", err.Error()))
		return
	}

	saved, err := h.quoteService.SaveCryptoQuote(ctx, &application.SaveCryptoQuoteCommand{
		Pair:       body.Pair,
		ReceivedAt: body.ReceivedAt,
		Quote:      body.Quote,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, SavedResponse{Data: saved})
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail 将应用层错误映射为 HTTP 状态码与错误结果
func (h *Handler) fail(c *gin.Context, err error) {
	status, result := ErrorResultFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "Crypto quote request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, result)
}

// ErrorResultFor 返回错误对应的 HTTP 状态码与错误结果
func ErrorResultFor(err error) (int, *domain.ErrorResult) {
	switch {
	case errors.Is(err, domain.ErrPairRequired),
		errors.Is(err, domain.ErrInvalidTimeRange),
		errors.Is(err, domain.ErrNegativeVolume):
		return http.StatusBadRequest, domain.NewErrorResult(domain.CodeParamsError, "Invalid request", err.Error())
	case errors.Is(err, domain.ErrQuoteNotFound):
		return http.StatusNotFound, domain.NewErrorResult(domain.CodeQuoteNotFound, "Quote not found", err.Error())
	default:
		return http.StatusInternalServerError, domain.NewErrorResult(domain.CodeSystemError, "Internal error")
	}
}

// RateLimited 限流拒绝响应，与其他失败响应同为 ErrorResult
func RateLimited(c *gin.Context, d *ratelimit.Decision) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewErrorResult(
		domain.CodeRateLimited,
		"Too many requests",
		"retry after "+d.RetryAfter.Round(time.Millisecond).String(),
	))
}

// QuoteResponse 最新行情响应
type QuoteResponse struct {
	Data domain.CryptoQuoteResult `json:"data"`
}

// HistoryResponse 历史行情响应
type HistoryResponse struct {
	Data []*domain.CryptoQuote `json:"data"`
}

// SavedResponse 保存结果响应
type SavedResponse struct {
	Data *domain.CryptoQuote `json:"data"`
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1/crypto-quotes")
	{
		v1.GET("/quote", h.GetCryptoQuote)
		v1.POST("/quote", h.SaveCryptoQuote)
		v1.GET("/history", h.GetCryptoQuoteHistory)
		if h.stream != nil {
			v1.GET("/stream", h.stream)
		}
	}
}
