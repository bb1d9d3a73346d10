package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
	"github.com/KaramelBytes/mixwizard-cli/internal/statemgr"
	"github.com/KaramelBytes/mixwizard-cli/internal/utils"
	"github.com/KaramelBytes/mixwizard-cli/internal/wizard"
)

var (
	stSession   string
	stTarget    string
	stStatus    string
	stFilters   []string
	stSheets    []string
	stTotalRows int
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage persisted concatenation states",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored concatenation states",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, b, closeFn, err := newManager()
		if err != nil {
			return err
		}
		defer closeFn()
		names, err := b.ListStates(cmdContext(cmd))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(names) == 0 {
			fmt.Fprintln(out, "(no saved states)")
			return nil
		}
		for _, n := range names {
			fmt.Fprintf(out, "- %s\n", n)
		}
		return nil
	},
}

var stateLoadCmd = &cobra.Command{
	Use:   "load <original-file-name>",
	Short: "Print the stored state of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, _, closeFn, err := newManager()
		if err != nil {
			return err
		}
		defer closeFn()
		res := mgr.Load(cmdContext(cmd), args[0])
		if !res.Success {
			return fmt.Errorf("load %s: %s", args[0], res.Error)
		}
		out := cmd.OutOrStdout()
		if !res.Restored {
			fmt.Fprintf(out, "No saved state for %s\n", args[0])
			return nil
		}
		b, err := utils.PrettyJSON(res.Data)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(b))
		return nil
	},
}

var stateSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Persist a wizard session's concatenation state",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireConfig(); err != nil {
			return err
		}
		dir, err := resolveSessionDir(stSession)
		if err != nil {
			return err
		}
		s, err := wizard.LoadSession(dir)
		if err != nil {
			return err
		}
		if s.State.Concatenation == nil {
			return errors.New("session has no concatenation yet")
		}
		mgr, _, closeFn, err := newManager()
		if err != nil {
			return err
		}
		defer closeFn()
		st, res := mgr.Check(*s.State.Concatenation)
		for _, w := range res.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ %s\n", w)
		}
		if !res.IsValid {
			return res.Err()
		}
		if !mgr.Save(cmdContext(cmd), st) {
			return fmt.Errorf("failed to persist state for %s", st.OriginalFileName)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved state for %s\n", st.OriginalFileName)
		return nil
	},
}

var stateUpdateCmd = &cobra.Command{
	Use:   "update <original-file-name>",
	Short: "Merge fields into an existing stored state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p statemgr.Patch
		f := cmd.Flags()
		changed := false
		if f.Changed("target") {
			p.TargetVariable = &stTarget
			changed = true
		}
		if f.Changed("status") {
			s := concat.Status(stStatus)
			if !s.Valid() {
				return fmt.Errorf("invalid status %q (want processing, completed or error)", stStatus)
			}
			p.Status = &s
			changed = true
		}
		if f.Changed("filters") {
			p.SelectedFilters = append([]string{}, stFilters...)
			changed = true
		}
		if f.Changed("sheets") {
			p.SelectedSheets = append([]string{}, stSheets...)
			changed = true
		}
		if f.Changed("total-rows") {
			p.TotalRows = &stTotalRows
			changed = true
		}
		if !changed {
			return errors.New("nothing to update; pass at least one of --target, --status, --filters, --sheets, --total-rows")
		}
		mgr, _, closeFn, err := newManager()
		if err != nil {
			return err
		}
		defer closeFn()
		if !mgr.Update(cmdContext(cmd), args[0], p) {
			return fmt.Errorf("update failed for %s (no stored state, or the result is invalid)", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated state for %s\n", args[0])
		return nil
	},
}

var stateDeleteCmd = &cobra.Command{
	Use:   "delete <original-file-name>",
	Short: "Delete a stored state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, _, closeFn, err := newManager()
		if err != nil {
			return err
		}
		defer closeFn()
		if !mgr.Delete(cmdContext(cmd), args[0]) {
			return fmt.Errorf("failed to delete state for %s", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted state for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateListCmd, stateLoadCmd, stateSaveCmd, stateUpdateCmd, stateDeleteCmd)
	stateSaveCmd.Flags().StringVarP(&stSession, "session", "s", "", "session whose concatenation to save")
	stateUpdateCmd.Flags().StringVar(&stTarget, "target", "", "target variable")
	stateUpdateCmd.Flags().StringVar(&stStatus, "status", "", "processing, completed or error")
	stateUpdateCmd.Flags().StringSliceVar(&stFilters, "filters", nil, "filter column names (comma-separated)")
	stateUpdateCmd.Flags().StringSliceVar(&stSheets, "sheets", nil, "selected sheet names (comma-separated)")
	stateUpdateCmd.Flags().IntVar(&stTotalRows, "total-rows", 0, "total row count")
}
