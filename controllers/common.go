package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/danz-app/danz/middleware"
	"github.com/danz-app/danz/services"
	"github.com/danz-app/danz/utils"
)

type errorMapping struct {
	err    error
	status int
	code   int
}

// serviceErrors maps service sentinels to HTTP status and business code. Order matters for wrapped errors.
var serviceErrors = []errorMapping{
	{services.ErrInvalidInput, http.StatusBadRequest, 40020},
	{services.ErrForbidden, http.StatusForbidden, 40301},
	{services.ErrFIDMismatch, http.StatusForbidden, 40302},
	{services.ErrNotInParty, http.StatusForbidden, 40303},
	{services.ErrInviteRequired, http.StatusForbidden, 40304},
	{services.ErrNotPartyLeader, http.StatusForbidden, 40305},

	{services.ErrUserNotFound, http.StatusNotFound, 40401},
	{services.ErrPartyNotFound, http.StatusNotFound, 40410},
	{services.ErrStakeNotFound, http.StatusNotFound, 40420},
	{services.ErrItemNotFound, http.StatusNotFound, 40430},
	{services.ErrMessageNotFound, http.StatusNotFound, 40440},
	{services.ErrProviderNotFound, http.StatusNotFound, 40450},

	{services.ErrAlreadyCheckedIn, http.StatusConflict, 40930},
	{services.ErrCheckinInFlight, http.StatusConflict, 40931},
	{services.ErrAlreadyInParty, http.StatusConflict, 40940},
	{services.ErrPartyFull, http.StatusConflict, 40941},
	{services.ErrIdentityTaken, http.StatusConflict, 40950},

	{services.ErrStakeLocked, http.StatusBadRequest, 40060},
	{services.ErrStakeState, http.StatusBadRequest, 40061},
	{services.ErrBelowMinStake, http.StatusBadRequest, 40062},
	{services.ErrInsufficientBalance, http.StatusBadRequest, 40063},
	{services.ErrMaxStack, http.StatusBadRequest, 40070},
	{services.ErrItemNotActivatable, http.StatusBadRequest, 40071},
	{services.ErrItemDepleted, http.StatusBadRequest, 40072},
	{services.ErrLinkTokenInvalid, http.StatusBadRequest, 40080},
	{services.ErrLinkTokenExpired, http.StatusBadRequest, 40081},
	{services.ErrCannotUnlinkPrimary, http.StatusBadRequest, 40082},

	{services.ErrCooldown, http.StatusTooManyRequests, 42902},
}

// respondServiceError writes the envelope for err. Unknown errors are logged and reported as 500 with fallbackCode.
func respondServiceError(ctx *gin.Context, err error, fallbackCode int, fallbackMsg string) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			utils.Error(ctx, m.status, m.code, err.Error())
			return
		}
	}
	utils.Sugar.Errorw(fallbackMsg, "path", ctx.FullPath(), "error", err)
	utils.Error(ctx, http.StatusInternalServerError, fallbackCode, fallbackMsg)
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func pagination(page, pageSize int, total int64) gin.H {
	return gin.H{
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, v > 0
	case int:
		return uint(v), v > 0
	case int64:
		return uint(v), v > 0
	case float64:
		return uint(v), v > 0
	default:
		return 0, false
	}
}

func getFID(ctx *gin.Context) int64 {
	if v, ok := ctx.Get(middleware.ContextFIDKey); ok {
		if fid, ok := v.(int64); ok {
			return fid
		}
	}
	return 0
}

// requireUser reads the session user or writes a 401.
func requireUser(ctx *gin.Context) (uint, bool) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
	}
	return userID, ok
}

func parseIDParam(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil || n == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid "+name)
		return 0, false
	}
	return uint(n), true
}

func parseFID(s string) (int64, bool) {
	fid, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || fid <= 0 {
		return 0, false
	}
	return fid, true
}
