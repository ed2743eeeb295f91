package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"orcamento/internal/catalog"
	"orcamento/internal/core"
)

var (
	flagBand       string
	flagPosition   string
	flagMode       string
	flagPlanning   string
	flagIncome     string
	flagPets       bool
	flagDependents bool
)

var bandsCmd = &cobra.Command{
	Use:   "bands",
	Short: "List income bands and their sub-band midpoints",
	RunE:  runBands,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or store the household profile",
	RunE:  runProfileShow,
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the household profile",
	RunE:  runProfileSet,
}

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Generate the allocation for the household profile",
	Long:  "Generate the allocation for the stored profile, or for the profile given by flags when --income is set.",
	RunE:  runPropose,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the confirmed allocation",
	RunE:  runShow,
}

func init() {
	addProfileFlags(profileSetCmd)
	addProfileFlags(proposeCmd)
	addProfileFlags(adjustCmd)
	profileCmd.AddCommand(profileSetCmd)
	rootCmd.AddCommand(bandsCmd, profileCmd, proposeCmd, showCmd)
}

func addProfileFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagBand, "band", "", "Income band id (default: the band containing --income)")
	cmd.Flags().StringVar(&flagPosition, "position", string(core.Mid), "Sub-band position: low, mid or high")
	cmd.Flags().StringVar(&flagMode, "mode", string(core.Balanced), "Budget mode: conservative, balanced or aggressive")
	cmd.Flags().StringVar(&flagPlanning, "planning", string(core.PlanningPartial), "Non-monthly planning: none, partial or full")
	cmd.Flags().StringVar(&flagIncome, "income", "", "Monthly income anchor")
	cmd.Flags().BoolVar(&flagPets, "pets", false, "Household has pets")
	cmd.Flags().BoolVar(&flagDependents, "dependents", false, "Household has dependents")
}

// profileFromFlags builds a profile from the flags. When --band is empty the
// band is looked up from the income.
func profileFromFlags(cat *catalog.Catalog) (core.Profile, error) {
	income, err := core.ParseAmount(flagIncome)
	if err != nil {
		return core.Profile{}, fmt.Errorf("--income: %w", err)
	}
	band := flagBand
	if band == "" {
		b, err := cat.BandFor(income)
		if err != nil {
			return core.Profile{}, err
		}
		band = b.ID
	}
	p := core.Profile{
		BandID:        band,
		Position:      core.Position(flagPosition),
		Mode:          core.BudgetMode(flagMode),
		Planning:      core.PlanningLevel(flagPlanning),
		HasPets:       flagPets,
		HasDependents: flagDependents,
		IncomeAnchor:  income,
	}
	if _, err := cat.SubBand(p.BandID, p.Position); err != nil {
		return core.Profile{}, err
	}
	return p, p.Validate()
}

// resolveProfile prefers flags and falls back to the stored profile.
func (a *app) resolveProfile(cmd *cobra.Command) (core.Profile, error) {
	if flagIncome != "" {
		cat, err := catalog.Load(a.cfg.CatalogPath)
		if err != nil {
			return core.Profile{}, err
		}
		return profileFromFlags(cat)
	}
	p, err := a.svc.LoadProfile(cmd.Context(), flagHousehold)
	if errors.Is(err, core.ErrNotFound) {
		return core.Profile{}, fmt.Errorf("household %q has no profile: run 'orcamento profile set' or pass --income", flagHousehold)
	}
	return p, err
}

func runBands(_ *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	t := table{Headers: []string{"Band", "Label", "Range", "Low", "Mid", "High"}}
	for _, b := range cat.Bands() {
		upper := "∞"
		if b.Upper > 0 {
			upper = fmt.Sprint(b.Upper)
		}
		t.Rows = append(t.Rows, []string{
			b.ID, b.Label, fmt.Sprintf("%d – %s", b.Lower, upper),
			fmt.Sprint(b.SubBands[0].Midpoint), fmt.Sprint(b.SubBands[1].Midpoint), fmt.Sprint(b.SubBands[2].Midpoint),
		})
	}
	fmt.Println(renderTitle("INCOME BANDS  catalog " + cat.Version))
	fmt.Print(renderTable(t))
	return nil
}

func runProfileShow(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.svc.LoadProfile(cmd.Context(), flagHousehold)
	if err != nil {
		return err
	}
	fmt.Println(renderTitle("PROFILE  " + flagHousehold))
	fmt.Print(renderTable(profileTable(p)))
	return nil
}

func runProfileSet(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	cat, err := catalog.Load(a.cfg.CatalogPath)
	if err != nil {
		return err
	}
	p, err := profileFromFlags(cat)
	if err != nil {
		return err
	}
	if err := a.svc.SaveProfile(cmd.Context(), flagHousehold, p); err != nil {
		return err
	}
	fmt.Println(renderOK("profile stored for " + flagHousehold))
	fmt.Print(renderTable(profileTable(p)))
	return nil
}

func runPropose(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.resolveProfile(cmd)
	if err != nil {
		return err
	}
	prop, err := a.svc.Propose(cmd.Context(), p)
	if err != nil {
		return err
	}
	fmt.Println(renderTitle(fmt.Sprintf("PROPOSAL  %s  %s/%s", flagHousehold, p.BandID, p.Position)))
	fmt.Print(renderTable(allocationTable(prop.Allocation)))
	fmt.Print(renderProposalWarnings(prop.Warnings))
	return nil
}

func runShow(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, rep, err := a.svc.CurrentAllocation(cmd.Context(), flagHousehold)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("household %q has no confirmed allocation", flagHousehold)
	}
	if err != nil {
		return err
	}
	fmt.Println(renderTitle(fmt.Sprintf("ALLOCATION  %s  v%d", rec.HouseholdID, rec.Version)))
	fmt.Print(renderTable(allocationTable(rec.Allocation)))
	fmt.Println(mutedStyle.Render(fmt.Sprintf("%s on %s, export %s",
		rec.Outcome, rec.ConfirmedAt.Local().Format("2006-01-02 15:04"), rec.ExportStatus)))
	fmt.Print(renderReport(rep))
	return nil
}

func profileTable(p core.Profile) table {
	yesNo := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}
	return table{
		Headers: []string{"Field", "Value"},
		Rows: [][]string{
			{"band", p.BandID},
			{"position", string(p.Position)},
			{"mode", string(p.Mode)},
			{"planning", string(p.Planning)},
			{"income", fmt.Sprint(p.IncomeAnchor)},
			{"pets", yesNo(p.HasPets)},
			{"dependents", yesNo(p.HasDependents)},
		},
	}
}
