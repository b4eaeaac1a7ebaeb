package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"fund-ledger/internal/closure"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type closeCmd struct {
	load        loader
	periodStart string
	periodEnd   string
	yield       string
}

func (*closeCmd) Name() string { return "close-period" }
func (*closeCmd) Synopsis() string {
	return "close a fund and distribute the period earnings"
}
func (*closeCmd) Usage() string {
	return `fund-admin close-period [-period-start <date>] [-period-end <date>] [-yield <rate>] <fund_id>

  Closes an open fund. Every active allocation earns its amount times the
  period yield; the company share, and the referral share of first referred
  deposits, are deducted and one reward per allocation is recorded.
`
}

func (c *closeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.periodStart, "period-start", "", "Start of the closed period (defaults to the fund creation).")
	f.StringVar(&c.periodEnd, "period-end", "", "End of the closed period (defaults to now).")
	f.StringVar(&c.yield, "yield", "", "Period yield as a fraction, e.g. 0.2 (defaults to the configured yield).")
}

func (c *closeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, err := fundID(f.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	var opts closure.Options
	if opts.PeriodStart, err = parseTime(c.periodStart); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	if opts.PeriodEnd, err = parseTime(c.periodEnd); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	if strings.TrimSpace(c.yield) != "" {
		yield, err := decimal.NewFromString(c.yield)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing yield: %v\n", err)
			return subcommands.ExitUsageError
		}
		opts.PeriodYield = &yield
	}

	e, cleanup, err := c.load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer cleanup()

	result, err := e.closure.CloseFund(ctx, id, opts)
	if err != nil {
		return e.fail(err)
	}

	snap := result.Snapshot
	fmt.Fprintf(e.out, "Fund %d closed (%s)\n", id, snap.Reference)
	fmt.Fprintf(e.out, "Period: %s to %s, yield %s\n",
		snap.PeriodStart.Format("2006-01-02"), snap.PeriodEnd.Format("2006-01-02"), snap.PeriodYield)

	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Client\tInvestment\tGross\tCompany\tReferral\tNet\t")
	for _, r := range result.Rewards {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t\n",
			r.ClientUserID,
			e.money(r.Investment),
			e.money(r.GrossEarnings),
			e.money(r.CompanyDeduction),
			e.money(r.ReferralDeduction),
			e.money(r.NetEarnings))
	}
	fmt.Fprintf(w, "Total\t%s\t%s\t%s\t%s\t%s\t\n",
		e.money(snap.TotalInvestment),
		e.money(snap.TotalGrossEarnings),
		e.money(snap.CompanyTotal),
		e.money(snap.ReferralTotal),
		e.money(snap.ClientsNetTotal))
	w.Flush()

	fmt.Fprintf(e.out, "%d participants, %d referral commissions paid\n", snap.ParticipantCount, len(result.ReferralsPaid))
	return subcommands.ExitSuccess
}
