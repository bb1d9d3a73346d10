package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
	"github.com/KaramelBytes/mixwizard-cli/internal/sheets"
	"github.com/KaramelBytes/mixwizard-cli/internal/transform"
	"github.com/KaramelBytes/mixwizard-cli/internal/utils"
	"github.com/KaramelBytes/mixwizard-cli/internal/wizard"
)

var (
	wizSession      string
	wizUserType     string
	wizAnalysisType string
	wizStatusJSON   bool
)

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Drive an analysis wizard session",
}

var wizardStartCmd = &cobra.Command{
	Use:   "start <session-name>",
	Short: "Start a new wizard session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := sessionsDir()
		if err != nil {
			return err
		}
		dir := wizard.SessionDir(root, args[0])
		if _, err := os.Stat(filepath.Join(dir, "session.json")); err == nil {
			return fmt.Errorf("session already exists at %s", dir)
		}
		s, err := wizard.NewSession(args[0], dir)
		if err != nil {
			return err
		}
		c := s.Controller()
		if wizUserType != "" {
			if err := c.SetUserType(wizard.UserType(wizUserType)); err != nil {
				return err
			}
		}
		if wizAnalysisType != "" {
			if err := c.SetAnalysisType(wizard.AnalysisType(wizAnalysisType)); err != nil {
				return err
			}
		}
		s.Capture(c)
		if err := s.Save(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Session started: %s\n", dir)
		printStep(out, c)
		return nil
	},
}

var wizardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wizard sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := sessionsDir()
		if err != nil {
			return err
		}
		names, err := wizard.ListSessions(root)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(names) == 0 {
			fmt.Fprintln(out, "(no sessions)")
			return nil
		}
		for _, n := range names {
			fmt.Fprintf(out, "- %s\n", n)
		}
		return nil
	},
}

var wizardStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current step and collected answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if wizStatusJSON {
			b, err := utils.PrettyJSON(s.State)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}
		c := s.Controller()
		p := c.Progress()
		fmt.Fprintf(out, "Session: %s (%s)\n", s.Name, s.ID)
		fmt.Fprintf(out, "Variant: %s  Step %d/%d: %s (%.0f%%)\n", c.Variant(), p.Current, p.Total, p.Title, p.Percent)
		for _, step := range c.Steps() {
			marker := "  "
			switch {
			case step.ID < p.Current:
				marker = "✓ "
			case step.ID == p.Current:
				marker = "→ "
			}
			suffix := ""
			if !step.IsRequired {
				suffix = " (optional)"
			}
			fmt.Fprintf(out, " %s%2d %s%s\n", marker, step.ID, step.Title, suffix)
		}
		printAnswers(out, s.State)
		return nil
	},
}

var wizardSetCmd = &cobra.Command{
	Use:   "set <field> [value...]",
	Short: "Answer the current step (user-type, analysis-type, analysis-mode, file, concatenate, target, brand, filter, model-result)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		mgr, _, closeFn, err := newManager()
		if err != nil {
			return err
		}
		defer closeFn()
		c := s.Controller(wizard.WithStateManager(mgr), wizard.BlockOnPersistFailure(cfg.BlockOnPersistFailure))
		out := cmd.OutOrStdout()

		field, rest := args[0], args[1:]
		value := strings.Join(rest, " ")
		switch field {
		case "user-type":
			err = c.SetUserType(wizard.UserType(value))
		case "analysis-type":
			err = c.SetAnalysisType(wizard.AnalysisType(value))
		case "analysis-mode":
			err = c.SetAnalysisMode(wizard.AnalysisMode(value))
		case "file":
			err = setUploadedFile(cmdContext(cmd), out, c, value)
		case "concatenate":
			err = concatenateSheets(out, c, splitList(value))
		case "target":
			err = setTarget(out, c, value)
		case "brand":
			err = c.SetSelectedBrand(value)
		case "filter":
			if len(rest) == 0 {
				return errors.New("usage: wizard set filter <column> [value]")
			}
			err = c.SetFilter(rest[0], strings.Join(rest[1:], " "))
		case "model-result":
			var b []byte
			b, err = os.ReadFile(value)
			if err == nil {
				err = c.SetModelResult(b)
			}
		default:
			return fmt.Errorf("unknown field %q", field)
		}
		if err != nil {
			return err
		}
		s.Capture(c)
		if err := s.Save(); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ %s updated\n", field)
		if c.CanAdvance() {
			fmt.Fprintln(out, "  Step complete; run `mixwizard wizard next` to continue")
		}
		return nil
	},
}

var wizardNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Advance to the next step when the current one is complete",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		mgr, _, closeFn, err := newManager()
		if err != nil {
			return err
		}
		defer closeFn()
		c := s.Controller(wizard.WithStateManager(mgr), wizard.BlockOnPersistFailure(cfg.BlockOnPersistFailure))
		out := cmd.OutOrStdout()

		step := c.Step()
		moved, err := c.Advance(cmdContext(cmd))
		if err != nil {
			return err
		}
		if !moved {
			fmt.Fprintf(out, "⚠ Step %d (%s) is not complete yet\n", step.ID, step.Title)
			return nil
		}
		s.Capture(c)
		if err := s.Save(); err != nil {
			return err
		}
		printStep(out, c)
		return nil
	},
}

var wizardBackCmd = &cobra.Command{
	Use:   "back [step]",
	Short: "Go back one step, or to an earlier step",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		c := s.Controller()
		if len(args) == 1 {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid step %q", args[0])
			}
			if err := c.GoTo(id); err != nil {
				return err
			}
		} else if !c.Retreat() {
			return errors.New("already on the first step")
		}
		s.Capture(c)
		if err := s.Save(); err != nil {
			return err
		}
		printStep(cmd.OutOrStdout(), c)
		return nil
	},
}

var wizardCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Finish the wizard and print the dashboard link",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		c := s.Controller()
		if !c.Complete() {
			p := c.Progress()
			return fmt.Errorf("wizard is on step %d of %d (%s)", p.Current, p.Total, p.Title)
		}
		link, err := dashboardLink(cfg.DashboardURL, s.State)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Analysis complete. Open the dashboard:\n  %s\n", link)
		return nil
	},
}

func openSession() (*wizard.Session, error) {
	if _, err := requireConfig(); err != nil {
		return nil, err
	}
	dir, err := resolveSessionDir(wizSession)
	if err != nil {
		return nil, err
	}
	return wizard.LoadSession(dir)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printStep(out io.Writer, c *wizard.Controller) {
	p := c.Progress()
	step := c.Step()
	fmt.Fprintf(out, "Step %d/%d: %s\n", p.Current, p.Total, p.Title)
	if step.NextLabel != "" {
		fmt.Fprintf(out, "  Next: %s\n", step.NextLabel)
	}
}

func printAnswers(out io.Writer, st wizard.AnalysisState) {
	if st.UserType != "" {
		fmt.Fprintf(out, "User type: %s\n", st.UserType)
	}
	if st.AnalysisMode != "" {
		fmt.Fprintf(out, "Analysis mode: %s\n", st.AnalysisMode)
	}
	if f := st.UploadedFile; f != nil {
		fmt.Fprintf(out, "File: %s (%s, %d rows, %d columns)\n", f.Name, f.FileType, f.RowCount, len(f.Columns))
	}
	if cs := st.Concatenation; cs != nil {
		fmt.Fprintf(out, "Concatenation: %s [%s] %d rows, status %s\n", cs.ConcatenatedFileName, strings.Join(cs.SelectedSheets, ", "), cs.TotalRows, cs.Status)
	}
	if st.TargetVariable != "" {
		fmt.Fprintf(out, "Target: %s\n", st.TargetVariable)
	}
	for k, v := range st.SelectedFilters {
		fmt.Fprintf(out, "Filter: %s = %s\n", k, v)
	}
	if st.SelectedBrand != "" {
		fmt.Fprintf(out, "Brand: %s\n", st.SelectedBrand)
	}
	if st.ModelResult != nil {
		fmt.Fprintf(out, "Model result: %s\n", st.ModelResult.CompletedAt.Format("2006-01-02 15:04:05"))
	}
}

// setUploadedFile summarizes path and, when the backend holds a record for
// the file, restores it.
func setUploadedFile(ctx context.Context, out io.Writer, c *wizard.Controller, path string) error {
	if path == "" {
		return errors.New("usage: wizard set file <path>")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	sum, err := sheets.Summarize(abs)
	if err != nil {
		return err
	}
	if err := c.SetUploadedFile(wizard.FileSummary{
		Name:     sum.FileName,
		Path:     abs,
		FileType: sum.FileType,
		Columns:  sum.Columns,
		RowCount: sum.RowCount,
		Sheets:   sum.Sheets,
	}); err != nil {
		return err
	}
	fmt.Fprintf(out, "  %s: %d rows, %d columns, sheets: %s\n", sum.FileName, sum.RowCount, len(sum.Columns), strings.Join(sum.Sheets, ", "))

	restored, err := c.RestoreConcatenation(ctx, c.Ticket(), sum.FileName)
	if err != nil {
		fmt.Fprintf(out, "⚠ Could not restore saved concatenation: %v\n", err)
		return nil
	}
	if restored {
		fmt.Fprintln(out, "✓ Restored saved concatenation state")
	}
	return nil
}

// concatenateSheets stacks the selected sheets of the uploaded file, writes
// the result beside it and records the concatenation.
func concatenateSheets(out io.Writer, c *wizard.Controller, selected []string) error {
	st := c.State()
	f := st.UploadedFile
	if f == nil || f.Path == "" {
		return errors.New("no file uploaded; run `wizard set file <path>` first")
	}
	wb, err := sheets.Open(f.Path)
	if err != nil {
		return err
	}
	merged, err := wb.Concatenate(selected)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		selected = f.Sheets
	}
	name := sheets.ConcatenatedFileName(f.Name)
	if err := sheets.WriteXLSX(filepath.Join(filepath.Dir(f.Path), name), merged); err != nil {
		return err
	}
	rows := 100
	if cfg != nil && cfg.PreviewRows > 0 {
		rows = cfg.PreviewRows
	}
	record := concat.Create(concat.CreateParams{
		OriginalFileName:     f.Name,
		ConcatenatedFileName: name,
		SelectedSheets:       selected,
		TargetVariable:       st.TargetVariable,
		PreviewData:          transform.TransformAPIDataToPreview(merged.Table(rows)),
		ColumnCategories:     transform.CategorizeColumns(merged.Columns),
		TotalRows:            len(merged.Rows),
	}, timeNow())
	if err := c.SetConcatenation(record); err != nil {
		return err
	}
	// Target selection works on the concatenated columns from here on.
	upd := *f
	upd.Columns = merged.Columns
	upd.RowCount = len(merged.Rows)
	if err := c.SetUploadedFile(upd); err != nil {
		return err
	}
	fmt.Fprintf(out, "  Wrote %s (%d rows)\n", name, len(merged.Rows))
	return nil
}

// setTarget selects the target and derives brand metadata from it.
func setTarget(out io.Writer, c *wizard.Controller, column string) error {
	if err := c.SetTargetVariable(column); err != nil {
		return err
	}
	st := c.State()
	var cats concat.ColumnCategories
	if st.Concatenation != nil {
		cats = st.Concatenation.ColumnCategories
	}
	md := transform.CreateBrandMetadata(column, st.UploadedFile.Columns, cats, timeNow())
	c.SetBrandMetadata(md)
	if md.OurBrand != "" {
		fmt.Fprintf(out, "  Our brand: %s\n", md.OurBrand)
	}
	if len(md.Categories.Competitors) > 0 {
		fmt.Fprintf(out, "  Competitors: %s\n", strings.Join(md.Categories.Competitors, ", "))
	}
	if len(md.Categories.HaloBrands) > 0 {
		fmt.Fprintf(out, "  Halo brands: %s\n", strings.Join(md.Categories.HaloBrands, ", "))
	}
	return nil
}

func dashboardLink(base string, st wizard.AnalysisState) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("invalid dashboard_url %q", base)
	}
	q := u.Query()
	if name := st.FileName(); name != "" {
		q.Set("file", name)
	}
	if st.SelectedBrand != "" {
		q.Set("brand", st.SelectedBrand)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(wizardCmd)
	wizardCmd.PersistentFlags().StringVarP(&wizSession, "session", "s", "", "session name (default: session enclosing the working directory)")
	wizardCmd.AddCommand(wizardStartCmd, wizardListCmd, wizardStatusCmd, wizardSetCmd, wizardNextCmd, wizardBackCmd, wizardCompleteCmd)
	wizardStartCmd.Flags().StringVar(&wizUserType, "user-type", "", "brand, agency or analyst")
	wizardStartCmd.Flags().StringVar(&wizAnalysisType, "analysis-type", "", "mmm or non-mmm")
	wizardStatusCmd.Flags().BoolVar(&wizStatusJSON, "json", false, "print the raw session state as JSON")
}
