package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"fund-ledger/internal/ledger"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type revalueCmd struct {
	load   loader
	amount string
	reason string
}

func (*revalueCmd) Name() string     { return "revalue" }
func (*revalueCmd) Synopsis() string { return "set a fund's value and redistribute the change" }
func (*revalueCmd) Usage() string {
	return `fund-admin revalue -amount <value> [-reason <text>] <fund_id>

  Sets the current value of an open fund. A gain is split between the company
  position and the clients in proportion to their deposits; a loss is borne
  by the clients alone.
`
}

func (c *revalueCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.amount, "amount", "", "New total value of the fund.")
	f.StringVar(&c.reason, "reason", "", "Reason recorded in the fund history.")
}

func (c *revalueCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, err := fundID(f.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	if c.amount == "" {
		fmt.Fprintln(os.Stderr, "-amount is required")
		return subcommands.ExitUsageError
	}
	amount, err := decimal.NewFromString(c.amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing amount: %v\n", err)
		return subcommands.ExitUsageError
	}

	e, cleanup, err := c.load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer cleanup()

	result, err := e.valuation.RevalueFund(ctx, id, amount, c.reason)
	if err != nil {
		return e.fail(err)
	}

	h := result.History
	fmt.Fprintf(e.out, "Fund %d revalued: %s -> %s (%s%%)\n",
		id, e.money(h.PreviousAmount), e.money(h.NewAmount), ledger.FluctuationPercent(h.PreviousAmount, h.NewAmount))
	if result.CohortSkipped {
		fmt.Fprintln(e.out, "No client positions were updated")
		return subcommands.ExitSuccess
	}
	fmt.Fprintf(e.out, "Clients: %s across %d positions\n", e.money(result.ClientsProfit), len(result.Clients))
	if result.CompanyUpdated {
		fmt.Fprintf(e.out, "Company: %s -> %s\n", e.money(result.CompanyPrevious), e.money(result.CompanyAmount))
	}
	return subcommands.ExitSuccess
}
