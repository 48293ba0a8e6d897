package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ultrascript-lang/ultrascript/internal/config"
	"github.com/ultrascript-lang/ultrascript/internal/diag"
	"github.com/ultrascript-lang/ultrascript/internal/diaglog"
	"github.com/ultrascript-lang/ultrascript/internal/driver"
	"github.com/ultrascript-lang/ultrascript/internal/hostrt"
	"github.com/ultrascript-lang/ultrascript/internal/loader"
)

var (
	flagCheck    bool
	flagLogLevel string
	flagLogJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "ultrascript",
	Short: "JIT compiler for the UltraScript language.",
	Long:  "Compiles a single UltraScript source file to x86-64 machine code and loads it into an executable page.",
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Compile a source file and load it into executable memory.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFile(args[0])
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&flagCheck, "check", false, "parse and analyze only; skip codegen and the JIT load")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit structured JSON log lines instead of text")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runFile(path string) error {
	level, err := logrus.ParseLevel(flagLogLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	log := diaglog.New(level, flagLogJSON)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	d := driver.New(cfg, log)

	if flagCheck {
		if _, err := d.Check(path); err != nil {
			report(path, err)
			os.Exit(1)
		}
		return nil
	}

	res, err := d.Compile(path)
	if err != nil {
		report(path, err)
		os.Exit(1)
	}

	for _, cyclePath := range res.Graph.Cycles {
		fmt.Fprintf(os.Stderr, "warning: circular import involving %s\n", cyclePath)
	}

	// The JIT loader (internal/loader) maps the compiled module into
	// executable memory and locates the entry point (spec.md §4.7 steps
	// 1-7). Actually spawning main as a goroutine (step 8) requires a
	// concrete loader.Runtime — the scheduler, GC, and object-model
	// runtime are external collaborators this repository only declares
	// the calling convention for (spec.md §1, §5), and do not ship a
	// production implementation of. An embedding host that links one in
	// can drive the same compiled Result through driver.Run.
	ld := loader.New(log)
	prog, err := ld.Load(res.Module, res.FuncMgr, hostrt.Unavailable())
	if err != nil {
		report(path, err)
		os.Exit(1)
	}

	fmt.Printf("compiled %s: entry point at 0x%x\n", path, prog.MainAddr())
	return nil
}

func report(path string, err error) {
	de, ok := err.(*diag.Error)
	if !ok || !de.Kind.UserFacing() || de.Pos.Line == 0 {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	source, readErr := driver.ReadSource(path)
	if readErr != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	reporter := diag.NewReporter(path, source, os.Stderr)
	fmt.Fprint(os.Stderr, reporter.Render(de))
}
