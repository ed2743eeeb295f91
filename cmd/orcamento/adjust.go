package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"orcamento/internal/budget"
	"orcamento/internal/core"
	"orcamento/internal/onboarding"
)

var (
	flagSet     []string
	flagSub     []string
	flagShrink  []string
	flagGrow    []string
	flagConfirm bool
)

var adjustCmd = &cobra.Command{
	Use:   "adjust",
	Short: "Adjust the proposal and optionally confirm it",
	Long: `Generate the proposal, apply edits in order (--set, then --sub, then --shrink
and --grow) and print the result. Every edit is funded by the IF line.
With --confirm and no edits the proposal is accepted as is.`,
	Example: `  orcamento adjust --set L=12 --set C=28
  orcamento adjust --sub C=Rent:700 --sub C=Utilities:150 --shrink C --confirm`,
	RunE: runAdjust,
}

func init() {
	adjustCmd.Flags().StringArrayVar(&flagSet, "set", nil, "Set a line's share: CODE=PCT (repeatable)")
	adjustCmd.Flags().StringArrayVar(&flagSub, "sub", nil, "Add a subcategory: CODE=name:amount (repeatable)")
	adjustCmd.Flags().StringArrayVar(&flagShrink, "shrink", nil, "Shrink a line to its subcategory total (repeatable)")
	adjustCmd.Flags().StringArrayVar(&flagGrow, "grow", nil, "Grow a line to its subcategory total (repeatable)")
	adjustCmd.Flags().BoolVar(&flagConfirm, "confirm", false, "Persist the result")
	rootCmd.AddCommand(adjustCmd)
}

type percentageEdit struct {
	code core.PrefixCode
	pct  float64
}

// parseSet reads CODE=PCT. A comma is accepted as decimal separator.
func parseSet(s string) (percentageEdit, error) {
	code, value, ok := strings.Cut(s, "=")
	if !ok {
		return percentageEdit{}, fmt.Errorf("--set %q: expected CODE=PCT", s)
	}
	c, err := core.ParsePrefixCode(code)
	if err != nil {
		return percentageEdit{}, fmt.Errorf("--set %q: %w", s, err)
	}
	pct, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(value), ",", "."), 64)
	if err != nil {
		return percentageEdit{}, fmt.Errorf("--set %q: invalid percentage", s)
	}
	return percentageEdit{code: c, pct: pct}, nil
}

type subcategoryGroup struct {
	code core.PrefixCode
	subs []core.SubcategoryBudget
}

// parseSubs reads CODE=name:amount entries and groups them by line in the
// order lines first appear.
func parseSubs(entries []string) ([]subcategoryGroup, error) {
	var groups []subcategoryGroup
	index := make(map[core.PrefixCode]int)
	for _, s := range entries {
		code, rest, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("--sub %q: expected CODE=name:amount", s)
		}
		i := strings.LastIndex(rest, ":")
		if i < 0 {
			return nil, fmt.Errorf("--sub %q: expected CODE=name:amount", s)
		}
		c, err := core.ParsePrefixCode(code)
		if err != nil {
			return nil, fmt.Errorf("--sub %q: %w", s, err)
		}
		amount, err := core.ParseAmount(rest[i+1:])
		if err != nil {
			return nil, fmt.Errorf("--sub %q: %w", s, err)
		}
		sub := core.SubcategoryBudget{Name: rest[:i], Amount: amount}
		g, ok := index[c]
		if !ok {
			g = len(groups)
			index[c] = g
			groups = append(groups, subcategoryGroup{code: c})
		}
		groups[g].subs = append(groups[g].subs, sub)
	}
	return groups, nil
}

func parseCodes(flag string, values []string) ([]core.PrefixCode, error) {
	out := make([]core.PrefixCode, 0, len(values))
	for _, v := range values {
		c, err := core.ParsePrefixCode(v)
		if err != nil {
			return nil, fmt.Errorf("--%s %q: %w", flag, v, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func runAdjust(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	sets := make([]percentageEdit, 0, len(flagSet))
	for _, s := range flagSet {
		e, err := parseSet(s)
		if err != nil {
			return err
		}
		sets = append(sets, e)
	}
	groups, err := parseSubs(flagSub)
	if err != nil {
		return err
	}
	shrink, err := parseCodes("shrink", flagShrink)
	if err != nil {
		return err
	}
	grow, err := parseCodes("grow", flagGrow)
	if err != nil {
		return err
	}
	edits := len(sets) + len(groups) + len(shrink) + len(grow)

	a, err := openApp(ctx, flagConfirm)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.resolveProfile(cmd)
	if err != nil {
		return err
	}
	sess, err := a.svc.NewSession(flagHousehold)
	if err != nil {
		return err
	}
	if err := sess.Submit(ctx, p); err != nil {
		return err
	}
	fmt.Print(renderProposalWarnings(sess.Proposal().Warnings))

	if edits == 0 {
		fmt.Println(renderTitle("PROPOSAL  " + flagHousehold))
		fmt.Print(renderTable(allocationTable(sess.Allocation())))
		if !flagConfirm {
			return nil
		}
		rep, err := sess.Accept(ctx)
		return a.reportPersist(cmd, rep, err)
	}

	if err := sess.Adjust(); err != nil {
		return err
	}
	for _, e := range sets {
		res, err := sess.SetPercentage(e.code, e.pct)
		if err != nil {
			return err
		}
		printEdit(sess, fmt.Sprintf("set %s to %s", e.code, formatPct(e.pct)), e.code, res)
	}
	for _, g := range groups {
		if _, err := sess.SetSubcategories(g.code, g.subs); err != nil {
			return err
		}
		fmt.Println(renderOK(fmt.Sprintf("%d subcategories on %s", len(g.subs), g.code)))
	}
	for _, c := range shrink {
		res, err := sess.Shrink(c)
		if err != nil {
			return err
		}
		printEdit(sess, "shrink "+c.String(), c, res)
	}
	for _, c := range grow {
		res, err := sess.Grow(c)
		if err != nil {
			return err
		}
		printEdit(sess, "grow "+c.String(), c, res)
	}

	fmt.Println(renderTitle(fmt.Sprintf("ADJUSTED  %s  %d edits", flagHousehold, sess.Edits())))
	fmt.Print(renderTable(allocationTable(sess.Allocation())))
	if !flagConfirm {
		fmt.Print(renderReport(sess.Check()))
		return nil
	}
	rep, err := sess.Confirm(ctx)
	return a.reportPersist(cmd, rep, err)
}

func printEdit(sess *onboarding.Session, what string, code core.PrefixCode, res budget.EditResult) {
	if res.Accepted {
		fmt.Println(renderOK(what))
		return
	}
	msg := fmt.Sprintf("%s rejected: %s (%s)", what, res.Reason.Message(), res.Reason)
	if res.Reason == budget.ReasonInsufficientBuffer {
		if limit, err := budget.MaxPercentage(sess.Allocation(), code); err == nil {
			msg += fmt.Sprintf(", at most %s", formatPct(limit))
		}
	}
	fmt.Println(renderWarn(msg))
}

func (a *app) reportPersist(cmd *cobra.Command, rep budget.Report, err error) error {
	fmt.Print(renderReport(rep))
	if errors.Is(err, onboarding.ErrBlocked) {
		return errors.New("allocation not confirmed: resolve the errors above")
	}
	if err != nil {
		return err
	}
	rec, _, err := a.svc.CurrentAllocation(cmd.Context(), flagHousehold)
	if err != nil {
		return err
	}
	fmt.Println(renderOK(fmt.Sprintf("confirmed %s v%d (%s)", rec.HouseholdID, rec.Version, rec.Outcome)))
	return nil
}
