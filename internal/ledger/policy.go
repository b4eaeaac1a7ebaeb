package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy is the fixed distribution policy applied by the engines.
type Policy struct {
	// CompanyProfileID owns the company position of every fund
	CompanyProfileID int64
	// CompanyShare is the company cut of fund profit and of closure gross gains
	CompanyShare decimal.Decimal
	// ReferralShare is the referrer cut of a first referred deposit's gross gain
	ReferralShare decimal.Decimal
	// DefaultPeriodYield is used by closure when the operator passes none
	DefaultPeriodYield decimal.Decimal
	// ReferralCommissionPercent is recorded on newly registered referral links
	ReferralCommissionPercent decimal.Decimal
	Currency                  string
}

// DefaultPolicy returns the 20/15/20 policy with no company profile set.
func DefaultPolicy() Policy {
	return Policy{
		CompanyShare:              decimal.RequireFromString("0.20"),
		ReferralShare:             decimal.RequireFromString("0.15"),
		DefaultPeriodYield:        decimal.RequireFromString("0.20"),
		ReferralCommissionPercent: decimal.NewFromInt(15),
		Currency:                  "USD",
	}
}

// ClientShare is the part of fund profit distributed to clients.
func (p Policy) ClientShare() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(p.CompanyShare)
}

// Validate checks that shares are fractions and the company owner is known.
func (p Policy) Validate() error {
	if p.CompanyProfileID <= 0 {
		return fmt.Errorf("company profile id must be set")
	}
	one := decimal.NewFromInt(1)
	if p.CompanyShare.IsNegative() || p.CompanyShare.GreaterThan(one) {
		return fmt.Errorf("company share %s out of range [0,1]", p.CompanyShare)
	}
	if p.ReferralShare.IsNegative() || p.ReferralShare.GreaterThan(one) {
		return fmt.Errorf("referral share %s out of range [0,1]", p.ReferralShare)
	}
	if p.CompanyShare.Add(p.ReferralShare).GreaterThan(one) {
		return fmt.Errorf("company and referral shares exceed the gross gain")
	}
	if p.DefaultPeriodYield.IsNegative() {
		return fmt.Errorf("default period yield must not be negative")
	}
	return nil
}
