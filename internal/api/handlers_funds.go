package api

import (
	"errors"
	"io"

	"fund-ledger/internal/closure"
	"fund-ledger/internal/database"
	"fund-ledger/internal/funding"
	"fund-ledger/internal/ledger"
	"fund-ledger/internal/positions"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ============================================================================
// FUND READS
// ============================================================================

func (s *Server) money(d decimal.Decimal) string {
	return ledger.FormatMoney(d, s.deps.Currency)
}

func (s *Server) handleListFunds(c *gin.Context) {
	funds, err := s.deps.Store.ListFunds(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if funds == nil {
		funds = []*database.Fund{}
	}
	successResponse(c, funds)
}

func (s *Server) handleGetFund(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	fund, err := s.deps.Store.GetFund(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, gin.H{
		"fund": fund,
		"formatted": gin.H{
			"initial_amount": s.money(fund.InitialAmount),
			"current_amount": s.money(fund.CurrentAmount),
		},
		"fluctuation_percent": ledger.FluctuationPercent(fund.InitialAmount, fund.CurrentAmount),
	})
}

func (s *Server) handleFundHistory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.deps.Store.GetFund(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	history, err := s.deps.Store.ListFundHistory(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if history == nil {
		history = []*database.FundHistory{}
	}
	successResponse(c, history)
}

type positionView struct {
	*database.EarningPosition
	SharePercent decimal.Decimal         `json:"share_percent"`
	Formatted    string                  `json:"formatted_amount"`
	Participants []*database.Participant `json:"participants"`
}

func (s *Server) handleFundPositions(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.deps.Store.GetFund(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	list, err := s.deps.Store.ListPositionsByFund(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	cohort, err := positions.Classify(list)
	if err != nil {
		respondError(c, err)
		return
	}

	view := func(p *database.EarningPosition, share decimal.Decimal) (positionView, error) {
		participants, err := s.deps.Store.ListParticipantsByPosition(ctx, p.ID)
		if err != nil {
			return positionView{}, err
		}
		if participants == nil {
			participants = []*database.Participant{}
		}
		return positionView{EarningPosition: p, SharePercent: share, Formatted: s.money(p.CurrentAmount), Participants: participants}, nil
	}

	basis := cohort.ClientBasis()
	clients := make([]positionView, 0, len(cohort.Clients))
	for _, cp := range cohort.Clients {
		v, err := view(cp.EarningPosition, ledger.SharePercent(cp.InitialAmount, basis))
		if err != nil {
			respondError(c, err)
			return
		}
		clients = append(clients, v)
	}
	out := gin.H{
		"clients":      clients,
		"client_basis": basis,
		"client_value": cohort.ClientValue(),
	}
	if cohort.Company != nil {
		v, err := view(cohort.Company.EarningPosition, decimal.Zero)
		if err != nil {
			respondError(c, err)
			return
		}
		out["company"] = v
	}
	successResponse(c, out)
}

func (s *Server) handleFundAllocations(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.deps.Store.GetFund(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	allocations, err := s.deps.Store.ListAllocationsByFund(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if allocations == nil {
		allocations = []*database.Allocation{}
	}
	successResponse(c, allocations)
}

// ============================================================================
// CLOSURE REPORTS
// ============================================================================

func (s *Server) handleDistributionSummary(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	summary, err := s.deps.Reporter.DistributionSummary(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, gin.H{
		"summary": summary,
		"formatted": gin.H{
			"total_investment":    s.money(summary.TotalInvestment),
			"total_fund_earnings": s.money(summary.TotalFundEarnings),
			"company_total":       s.money(summary.CompanyTotal),
			"referrals_total":     s.money(summary.ReferralsTotal),
			"clients_total":       s.money(summary.ClientsTotal),
		},
	})
}

func (s *Server) handleClosureSummary(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	summary, err := s.deps.Reporter.ClosureSummary(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, summary)
}

func (s *Server) handleFundRewards(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	rewards, err := s.deps.Reporter.FundRewards(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, rewards)
}

// ============================================================================
// FUND OPERATIONS
// ============================================================================

func (s *Server) handleCreateFund(c *gin.Context) {
	var req funding.FundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	created, err := s.deps.Funding.CreateFund(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	createdResponse(c, created)
}

type revalueRequest struct {
	NewAmount *decimal.Decimal `json:"new_amount"`
	Reason    string           `json:"reason"`
}

func (s *Server) handleRevalueFund(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req revalueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.NewAmount == nil {
		badRequest(c, "new_amount is required")
		return
	}

	result, err := s.deps.Valuation.RevalueFund(c.Request.Context(), id, *req.NewAmount, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, gin.H{
		"revaluation": result,
		"formatted": gin.H{
			"previous_amount": s.money(result.History.PreviousAmount),
			"new_amount":      s.money(result.History.NewAmount),
			"total_profit":    s.money(result.TotalProfit),
			"company_amount":  s.money(result.CompanyAmount),
		},
	})
}

func (s *Server) handleCloseFund(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var opts closure.Options
	// an empty body, chunked or not, closes with the defaults
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}

	result, err := s.deps.Closure.CloseFund(c.Request.Context(), id, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	snap := result.Snapshot
	successResponse(c, gin.H{
		"closure": result,
		"formatted": gin.H{
			"total_investment":     s.money(snap.TotalInvestment),
			"total_gross_earnings": s.money(snap.TotalGrossEarnings),
			"company_total":        s.money(snap.CompanyTotal),
			"referral_total":       s.money(snap.ReferralTotal),
			"clients_net_total":    s.money(snap.ClientsNetTotal),
		},
	})
}
