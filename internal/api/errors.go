package api

import (
	"errors"
	"net/http"
	"strconv"

	"fund-ledger/internal/ledger"
	"fund-ledger/internal/logging"

	"github.com/gin-gonic/gin"
)

// errorMapping ties a ledger error to its HTTP status and error code
type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{ledger.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{ledger.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
	{ledger.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
	{ledger.ErrDuplicate, http.StatusConflict, "DUPLICATE"},
	{ledger.ErrNoActiveAllocations, http.StatusUnprocessableEntity, "NO_ACTIVE_ALLOCATIONS"},
	{ledger.ErrInconsistentCohort, http.StatusUnprocessableEntity, "INCONSISTENT_COHORT"},
	{ledger.ErrInvalidPosition, http.StatusUnprocessableEntity, "INVALID_POSITION"},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{ledger.ErrInvalidPeriod, http.StatusBadRequest, "INVALID_PERIOD"},
	{ledger.ErrNoPayments, http.StatusBadRequest, "NO_PAYMENTS"},
	{ledger.ErrInvalidTransition, http.StatusBadRequest, "INVALID_TRANSITION"},
	{ledger.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
}

// respondError maps err onto the error taxonomy. Unknown errors become a
// 500 without leaking their message.
func respondError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			c.JSON(m.status, gin.H{
				"error":   m.code,
				"message": err.Error(),
			})
			return
		}
	}

	ctx := c.Request.Context()
	logging.FromContext(ctx).WithError(err).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":    "INTERNAL_ERROR",
		"message":  "internal server error",
		"trace_id": logging.TraceIDFromContext(ctx),
	})
}

// badRequest reports malformed input
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "INVALID_REQUEST",
		"message": message,
	})
}

// idParam parses a positive numeric path parameter
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name+" parameter")
		return 0, false
	}
	return id, true
}
