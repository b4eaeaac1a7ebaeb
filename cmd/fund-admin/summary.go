package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"fund-ledger/internal/closure"

	"github.com/google/subcommands"
)

type summaryCmd struct {
	load    loader
	rewards bool
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "show how a fund's earnings were distributed" }
func (*summaryCmd) Usage() string {
	return `fund-admin summary [-rewards] <fund_id>

  Prints the distribution of the fund's latest closure, or a zeroed summary
  when the fund is still open. With -rewards, lists every reward.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.rewards, "rewards", false, "List the per-client rewards.")
}

func (c *summaryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, err := fundID(f.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	e, cleanup, err := c.load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer cleanup()

	s, err := e.reporter.DistributionSummary(ctx, id)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	fmt.Fprintf(e.out, "Fund %d: %s\n", id, s.Status)
	if s.Status == closure.StatusNotClosed {
		return subcommands.ExitSuccess
	}
	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Investment\t%s\t\n", e.money(s.TotalInvestment))
	fmt.Fprintf(w, "Earnings\t%s\t\n", e.money(s.TotalFundEarnings))
	fmt.Fprintf(w, "Company\t%s\t%s%%\n", e.money(s.CompanyTotal), s.CompanyPercentage)
	fmt.Fprintf(w, "Referrals\t%s\t%s%%\n", e.money(s.ReferralsTotal), s.ReferralsPercentage)
	fmt.Fprintf(w, "Clients\t%s\t%s%%\n", e.money(s.ClientsTotal), s.ClientsPercentage)
	w.Flush()
	fmt.Fprintf(e.out, "%d participants, %d first referred deposits\n", s.TotalParticipants, s.FirstDepositsReferred)

	if !c.rewards {
		return subcommands.ExitSuccess
	}
	rewards, err := e.reporter.FundRewards(ctx, id)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	w = tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Client\tReferrer\tNet\t")
	for _, r := range rewards {
		referrer := "-"
		if r.WasReferred {
			referrer = r.ReferrerName
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", r.ClientName, referrer, e.money(r.NetEarnings))
	}
	w.Flush()
	return subcommands.ExitSuccess
}
