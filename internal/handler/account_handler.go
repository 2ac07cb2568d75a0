package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"payout-core/internal/handler/response"
	"payout-core/internal/store"
	"payout-core/pkg/errno"
)

// AccountHandler 账户余额与流水只读视图，供上游协作方核对
type AccountHandler struct {
	accounts *store.AccountStore
	ledger   *store.LedgerStore
}

func NewAccountHandler(accounts *store.AccountStore, ledger *store.LedgerStore) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		ledger:   ledger,
	}
}

// Get 查询账户余额
// GET /api/v1/accounts/:user_id
func (h *AccountHandler) Get(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	acc, err := h.accounts.Get(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(c, errno.ErrAccountNotFound)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, acc)
}

// Ledger 查询账本流水 (倒序)
// GET /api/v1/accounts/:user_id/ledger
func (h *AccountHandler) Ledger(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	records, err := h.ledger.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"records": records})
}
