package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"payout-core/internal/handler"
	"payout-core/pkg/monitor"
)

// NewRouter 组装 HTTP 路由
func NewRouter(env string, payouts *handler.PayoutHandler, operator *handler.OperatorHandler, accounts *handler.AccountHandler) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(monitor.PrometheusMiddleware())

	// 运维端点
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/payouts", payouts.Create)
		v1.GET("/payouts/:id", payouts.Get)
		v1.POST("/payouts/:id/:action", operator.Action)
		v1.GET("/queue/stats", operator.QueueStats)

		v1.GET("/accounts/:user_id", accounts.Get)
		v1.GET("/accounts/:user_id/ledger", accounts.Ledger)
	}

	return r
}
