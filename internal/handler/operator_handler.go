package handler

import (
	"github.com/gin-gonic/gin"

	"payout-core/internal/handler/request"
	"payout-core/internal/handler/response"
	"payout-core/internal/service"
	"payout-core/pkg/errno"
)

// OperatorHandler 运营操作面与队列看板
type OperatorHandler struct {
	operator   *service.OperatorService
	dispatcher service.Dispatcher
}

func NewOperatorHandler(operator *service.OperatorService, dispatcher service.Dispatcher) *OperatorHandler {
	return &OperatorHandler{
		operator:   operator,
		dispatcher: dispatcher,
	}
}

// Action 执行运营操作 (approve / retry / reject / ack)
// POST /api/v1/payouts/:id/:action
func (h *OperatorHandler) Action(c *gin.Context) {
	var req request.OperatorActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	err := h.operator.Apply(c.Request.Context(), c.Param("id"), c.Param("action"), req.OperatorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// QueueStats 队列概览，供运营看板和健康检查消费
// GET /api/v1/queue/stats
func (h *OperatorHandler) QueueStats(c *gin.Context) {
	stats, err := h.dispatcher.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}
