package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
	"github.com/KaramelBytes/mixwizard-cli/internal/server"
	"github.com/KaramelBytes/mixwizard-cli/internal/store"
)

const salesCSV = "Week,Region,Volume BrandA,Volume BrandA Lite,Volume BrandB,Price BrandA\n" +
	"W1,North,10,2,5,1.99\n" +
	"W2,North,20,3,6,2.09\n" +
	"W3,South,30,4,7,1.89\n"

// resetFlags clears sticky Changed state between invocations.
func resetFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(fl *pflag.Flag) {
		if fl.Changed {
			_ = fl.Value.Set(fl.DefValue)
			fl.Changed = false
		}
	})
}

// runCmd executes the root command with args and returns its stdout.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

func execCmd(args ...string) (string, error) {
	cfg = nil
	for _, c := range []*cobra.Command{rootCmd, wizardCmd, wizardStartCmd, wizardStatusCmd, stateUpdateCmd, stateSaveCmd, inspectCmd, serveCmd} {
		resetFlags(c.Flags())
		resetFlags(c.PersistentFlags())
	}
	// StringSlice defaults do not round-trip through Set("[]")
	stFilters, stSheets, inspSheets, inspFilters = nil, nil, nil, nil

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestCLI_WizardMMMWithLocalStore(t *testing.T) {
	home := isolateHome(t)
	t.Setenv("MIXWIZARD_USE_LOCAL_STORE", "true")

	data := filepath.Join(home, "sales.csv")
	if err := os.WriteFile(data, []byte(salesCSV), 0o644); err != nil {
		t.Fatalf("write data: %v", err)
	}
	model := filepath.Join(home, "model.json")
	if err := os.WriteFile(model, []byte(`{"r2":0.91}`), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	runCmd(t, "wizard", "start", "demo", "--user-type", "brand", "--analysis-type", "mmm")
	runCmd(t, "wizard", "next", "-s", "demo")
	runCmd(t, "wizard", "next", "-s", "demo")
	runCmd(t, "wizard", "set", "-s", "demo", "analysis-mode", "new")
	runCmd(t, "wizard", "next", "-s", "demo")
	runCmd(t, "wizard", "set", "-s", "demo", "file", data)
	runCmd(t, "wizard", "next", "-s", "demo")
	runCmd(t, "wizard", "set", "-s", "demo", "concatenate")
	out := runCmd(t, "wizard", "next", "-s", "demo")
	if !strings.Contains(out, "Step 6/10: Target Variable") {
		t.Fatalf("expected target step, got:\n%s", out)
	}

	// leaving the concatenation step persisted the record
	stateFile := filepath.Join(home, ".mixwizard", "states", "sales.csv.state.json")
	if _, err := os.Stat(stateFile); err != nil {
		t.Fatalf("expected persisted state at %s: %v", stateFile, err)
	}
	if _, err := os.Stat(filepath.Join(home, "sales_concatenated.xlsx")); err != nil {
		t.Fatalf("expected concatenated workbook: %v", err)
	}

	out = runCmd(t, "wizard", "set", "-s", "demo", "target", "Volume BrandA")
	if !strings.Contains(out, "Our brand: BrandA") || !strings.Contains(out, "Halo brands: BrandA Lite") {
		t.Fatalf("unexpected brand split:\n%s", out)
	}
	runCmd(t, "wizard", "next", "-s", "demo")
	runCmd(t, "wizard", "set", "-s", "demo", "filter", "Region", "North")
	runCmd(t, "wizard", "next", "-s", "demo")

	out = runCmd(t, "wizard", "next", "-s", "demo")
	if !strings.Contains(out, "not complete yet") {
		t.Fatalf("brand step should block without a brand:\n%s", out)
	}
	if _, err := execCmd("wizard", "complete", "-s", "demo"); err == nil {
		t.Fatalf("complete should fail before the results step")
	}

	runCmd(t, "wizard", "set", "-s", "demo", "brand", "BrandA")
	runCmd(t, "wizard", "next", "-s", "demo")
	runCmd(t, "wizard", "set", "-s", "demo", "model-result", model)
	out = runCmd(t, "wizard", "next", "-s", "demo")
	if !strings.Contains(out, "Step 10/10: Results") {
		t.Fatalf("expected results step, got:\n%s", out)
	}

	out = runCmd(t, "wizard", "complete", "-s", "demo")
	if !strings.Contains(out, "file=sales.csv") || !strings.Contains(out, "brand=BrandA") {
		t.Fatalf("dashboard link missing query:\n%s", out)
	}

	out = runCmd(t, "wizard", "status", "-s", "demo")
	if !strings.Contains(out, "Filter: Region = North") {
		t.Fatalf("status missing filter:\n%s", out)
	}

	out = runCmd(t, "state", "list")
	if !strings.Contains(out, "- sales.csv") {
		t.Fatalf("state list missing record:\n%s", out)
	}
	runCmd(t, "state", "update", "sales.csv", "--target", "Volume BrandA")
	out = runCmd(t, "state", "load", "sales.csv")
	if !strings.Contains(out, `"targetVariable": "Volume BrandA"`) {
		t.Fatalf("update not visible in load:\n%s", out)
	}
	runCmd(t, "state", "delete", "sales.csv")
	out = runCmd(t, "state", "load", "sales.csv")
	if !strings.Contains(out, "No saved state for sales.csv") {
		t.Fatalf("expected deleted state:\n%s", out)
	}
}

func TestCLI_StateCommandsAgainstBackend(t *testing.T) {
	isolateHome(t)
	mem := store.NewMemory()
	srv := httptest.NewServer(server.New(mem, t.TempDir()))
	defer srv.Close()
	t.Setenv("MIXWIZARD_BACKEND_URL", srv.URL)

	st := concat.Create(concat.CreateParams{
		OriginalFileName:     "q1.xlsx",
		ConcatenatedFileName: "q1_concatenated.xlsx",
		SelectedSheets:       []string{"North"},
		PreviewData:          []concat.PreviewRow{{"Week": "W1"}},
		TotalRows:            1,
	}, time.Now())
	if err := mem.Put(context.Background(), &st); err != nil {
		t.Fatalf("seed: %v", err)
	}

	out := runCmd(t, "state", "load", "q1.xlsx")
	if !strings.Contains(out, `"concatenatedFileName": "q1_concatenated.xlsx"`) {
		t.Fatalf("unexpected load output:\n%s", out)
	}
	if _, err := execCmd("state", "update", "missing.xlsx", "--status", "error"); err == nil {
		t.Fatalf("update of a missing record should fail")
	}
	runCmd(t, "state", "delete", "q1.xlsx")
	got, err := mem.Get(context.Background(), "q1.xlsx")
	if err != nil || got != nil {
		t.Fatalf("expected record deleted, got %v, %v", got, err)
	}
}

func TestCLI_InspectAndConfig(t *testing.T) {
	home := isolateHome(t)
	data := filepath.Join(home, "sales.csv")
	if err := os.WriteFile(data, []byte(salesCSV), 0o644); err != nil {
		t.Fatalf("write data: %v", err)
	}

	out := runCmd(t, "inspect", data, "--target", "Volume BrandA", "--column", "Volume BrandA", "--bins", "2")
	for _, want := range []string{"Rows: 3", "Revenue:", "Pricing:", "Competitors: BrandB", "Histogram of Volume BrandA"} {
		if !strings.Contains(out, want) {
			t.Fatalf("inspect output missing %q:\n%s", want, out)
		}
	}

	runCmd(t, "config", "set", "preview_rows", "25")
	out = runCmd(t, "config", "show")
	if !strings.Contains(out, "preview_rows: 25") {
		t.Fatalf("config set not persisted:\n%s", out)
	}
	if _, err := execCmd("config", "set", "nope", "1"); err == nil {
		t.Fatalf("unknown key should fail")
	}
}
