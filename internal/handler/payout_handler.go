package handler

import (
	"github.com/gin-gonic/gin"

	"payout-core/internal/handler/request"
	"payout-core/internal/handler/response"
	"payout-core/internal/service"
	"payout-core/pkg/errno"
)

// PayoutHandler 提现单创建与查询
type PayoutHandler struct {
	payouts *service.PayoutService
}

func NewPayoutHandler(payouts *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// Create 创建提现单并入队
// POST /api/v1/payouts
func (h *PayoutHandler) Create(c *gin.Context) {
	var req request.CreatePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	payout, handle, err := h.payouts.Create(c.Request.Context(), service.CreateParams{
		RequestID:   req.RequestID,
		UserID:      req.UserID,
		Amount:      req.Amount,
		Fee:         req.Fee,
		ToAddress:   req.ToAddress,
		NetworkTag:  req.NetworkTag,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{
		"request": payout,
		"job":     handle,
	})
}

// Get 查询提现单
// GET /api/v1/payouts/:id
func (h *PayoutHandler) Get(c *gin.Context) {
	payout, err := h.payouts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, payout)
}
