package api

import (
	"fund-ledger/internal/database"
	"fund-ledger/internal/funding"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleRecordDeposit(c *gin.Context) {
	var req funding.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	deposit, err := s.deps.Funding.RecordDeposit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	createdResponse(c, deposit)
}

type transitionRequest struct {
	Status database.AllocationStatus `json:"status" binding:"required"`
}

func (s *Server) handleTransitionAllocation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	allocation, err := s.deps.Funding.TransitionAllocation(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, allocation)
}

func (s *Server) handleClientEarnings(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	earnings, err := s.deps.Reporter.ClientTotalEarnings(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, gin.H{
		"earnings":  earnings,
		"formatted": s.money(earnings.TotalNetEarnings),
	})
}

func (s *Server) handleReferrerCommissions(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	commissions, err := s.deps.Reporter.ReferrerTotalCommissions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, gin.H{
		"commissions": commissions,
		"formatted":   s.money(commissions.TotalPaid),
	})
}
