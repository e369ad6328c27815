package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/atmx/tactician/internal/averaging"
	"github.com/atmx/tactician/internal/calc"
	"github.com/atmx/tactician/internal/model"
	"github.com/atmx/tactician/internal/numfmt"
	"github.com/atmx/tactician/internal/prefs"
)

func calcCmd() *cobra.Command {
	var p calc.Params
	var mode, side, unit, basis string

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Compute position size, PnL, ROE and liquidation price",
		Long: `Compute the metrics of a simulated spot or futures position.

Example:
  tactician calc --entry 65000 --exit 68000 --amount 500 --leverage 20
  tactician calc --mode spot --unit base --entry 3000 --amount 2 --exit 3100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if p.Mode, err = parseMode(mode); err != nil {
				return err
			}
			if p.Side, err = parseSide(side); err != nil {
				return err
			}
			if p.Unit, err = parseUnit(unit); err != nil {
				return err
			}
			if p.Basis, err = parseBasis(basis); err != nil {
				return err
			}

			m := calc.ComputePositionMetrics(p)
			if !m.Valid {
				return fmt.Errorf("entry price must be positive and amount non-negative")
			}
			printMetrics(cmd.OutOrStdout(), p, m)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&mode, "mode", string(model.ModeFuture), "Mode: spot or future")
	f.StringVar(&side, "side", string(model.SideLong), "Side: long or short")
	f.StringVar(&unit, "unit", string(model.UnitQuote), "Amount unit: quote or base")
	f.StringVar(&basis, "basis", string(model.BasisPrincipal), "Quote amount basis: principal or notional")
	f.IntVarP(&p.Leverage, "leverage", "l", prefs.DefaultLeverage, "Leverage (futures only, 1-125)")
	f.StringVarP(&p.EntryPrice, "entry", "e", "", "Entry price")
	f.StringVarP(&p.ExitPrice, "exit", "x", "", "Exit price (optional)")
	f.StringVarP(&p.Amount, "amount", "a", "", "Amount in the chosen unit")
	f.StringVar(&p.TakeProfitRate, "tp", "", "Take-profit rate, percent of margin (futures only)")
	f.StringVar(&p.StopLossRate, "sl", "", "Stop-loss rate, percent of margin (futures only)")
	cmd.MarkFlagRequired("entry")
	cmd.MarkFlagRequired("amount")

	return cmd
}

func printMetrics(out io.Writer, p calc.Params, m calc.Metrics) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "Mode\t%s %s %dx\n", p.Mode, p.Side, m.Leverage)
	fmt.Fprintf(w, "Entry\t%s\n", numfmt.FormatPrice(m.EntryPrice.Decimal))
	fmt.Fprintf(w, "Size\t%s\n", m.PositionSize.Decimal.StringFixed(6))
	fmt.Fprintf(w, "Notional\t%s\n", numfmt.FormatMoney(m.Notional.Decimal))
	fmt.Fprintf(w, "Margin\t%s\n", numfmt.FormatMoney(m.Margin.Decimal))
	if m.PnL.Valid {
		fmt.Fprintf(w, "PnL\t%s\n", numfmt.FormatSigned(m.PnL.Decimal, 2))
	} else {
		fmt.Fprintf(w, "PnL\t--\n")
	}
	roe := "--"
	if m.ROEPct.Valid {
		roe = numfmt.FormatSigned(m.ROEPct.Decimal, 2) + "%"
	}
	fmt.Fprintf(w, "ROE\t%s\n", roe)

	if p.Mode != model.ModeFuture {
		return
	}
	fmt.Fprintf(w, "Bankruptcy\t%s\n", numfmt.Optional(m.BankruptcyPrice, 4))
	fmt.Fprintf(w, "Liquidation\t%s\n", numfmt.Optional(m.LiquidationPrice, 4))
	if m.TakeProfitPrice.Valid {
		fmt.Fprintf(w, "Take profit\t%s (+%s)\n",
			numfmt.FormatPrice(m.TakeProfitPrice.Decimal), m.TakeProfitValue.Decimal.StringFixed(2))
	}
	if m.StopLossPrice.Valid {
		fmt.Fprintf(w, "Stop loss\t%s (-%s)\n",
			numfmt.FormatPrice(m.StopLossPrice.Decimal), m.StopLossValue.Decimal.StringFixed(2))
	}
}

func averageCmd() *cobra.Command {
	var in averaging.Inputs

	cmd := &cobra.Command{
		Use:   "average",
		Short: "Blend an additional spot purchase into an existing holding",
		Long: `Compute the new average price after buying more of a spot holding.

Example:
  tactician average --price 100 --qty 1 --new-price 50 --spend 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := averaging.Evaluate(in).Blend

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintf(w, "Holding value\t%s\n", numfmt.FormatMoney(b.HoldingValue))
			fmt.Fprintf(w, "Bought\t%s\n", b.NewQtyFromBuy.StringFixed(6))
			fmt.Fprintf(w, "Total qty\t%s\n", b.TotalQty.StringFixed(6))
			fmt.Fprintf(w, "Total cost\t%s\n", numfmt.FormatMoney(b.TotalCost))
			fmt.Fprintf(w, "New average\t%s\n", numfmt.FormatPrice(b.NewAvgPrice))
			fmt.Fprintf(w, "Reduction\t%s\n", numfmt.FormatPercent(b.ReductionPct, 2))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.InitPrice, "price", "", "Current average price")
	f.StringVar(&in.InitQty, "qty", "", "Current quantity")
	f.StringVar(&in.NewPrice, "new-price", "", "Price of the additional purchase")
	f.StringVar(&in.NewSpend, "spend", "", "Quote currency spent on the additional purchase")
	cmd.MarkFlagRequired("price")
	cmd.MarkFlagRequired("qty")

	return cmd
}

func targetCmd() *cobra.Command {
	var in averaging.Inputs

	cmd := &cobra.Command{
		Use:   "target",
		Short: "Find the entry price that blends a holding to a target average",
		Long: `Solve for the price at which spending a budget brings the average
price of a holding to the target.

Example:
  tactician target --price 100 --qty 1 --target 75 --invest 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := averaging.Evaluate(in)
			out := cmd.OutOrStdout()
			if !res.RequiredPrice.Valid {
				fmt.Fprintln(out, "Target not reachable with this budget")
				return nil
			}
			fmt.Fprintf(out, "Required entry price: %s\n", numfmt.FormatPrice(res.RequiredPrice.Decimal))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.InitPrice, "price", "", "Current average price")
	f.StringVar(&in.InitQty, "qty", "", "Current quantity")
	f.StringVar(&in.TargetAvg, "target", "", "Target average price")
	f.StringVar(&in.PlanInvest, "invest", "", "Quote currency budget for the purchase")
	for _, name := range []string{"price", "qty", "target", "invest"} {
		cmd.MarkFlagRequired(name)
	}

	return cmd
}

func parseMode(s string) (model.Mode, error) {
	m := model.Mode(strings.ToLower(s))
	if !m.Valid() {
		return "", fmt.Errorf("invalid mode %q (expected spot or future)", s)
	}
	return m, nil
}

func parseSide(s string) (model.Side, error) {
	v := model.Side(strings.ToLower(s))
	if !v.Valid() {
		return "", fmt.Errorf("invalid side %q (expected long or short)", s)
	}
	return v, nil
}

func parseUnit(s string) (model.Unit, error) {
	switch u := model.Unit(strings.ToLower(s)); u {
	case model.UnitQuote, model.UnitBase:
		return u, nil
	}
	return "", fmt.Errorf("invalid unit %q (expected quote or base)", s)
}

func parseBasis(s string) (model.Basis, error) {
	switch b := model.Basis(strings.ToLower(s)); b {
	case model.BasisPrincipal, model.BasisNotional:
		return b, nil
	}
	return "", fmt.Errorf("invalid basis %q (expected principal or notional)", s)
}
