package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/maspeqc/qcpack/chromatogram"
	"github.com/maspeqc/qcpack/config"
)

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var verbose bool

	app := kingpin.New(filepath.Base(os.Args[0]), "Compacts mass-spec QC chromatograms and pump pressure profiles into storage.").UsageWriter(os.Stdout)
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable debug logging.").Short('v').Default("false").BoolVar(&verbose)
	app.Flag("db", "SQLite database path.").Default(cfg.DBPath).StringVar(&cfg.DBPath)

	xicCmd := app.Command("xic", "Reconstruct and store the chromatograms of an analysis bundle.")
	xicParams := addXICParams(xicCmd, &cfg)

	profileCmd := app.Command("profile", "Bin and store pump pressure profiles from CSV traces.")
	profileParams := addProfileParams(profileCmd, &cfg)

	inspectCmd := app.Command("inspect", "List the members and peak lists of an analysis bundle.")
	inspectArchive := inspectCmd.Arg("archive", "Bundle path.").Required().String()

	componentCmd := app.Command("component", "Manage sample components.")
	componentAddCmd := componentCmd.Command("add", "Register components.")
	componentAddNames := componentAddCmd.Arg("name", "Component names.").Required().Strings()
	componentListCmd := componentCmd.Command("list", "List registered components.")

	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	if verbose {
		cfg.LogLevel = "debug"
	}
	logger = level.NewFilter(logger, levelOption(cfg.LogLevel))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	ctx := context.Background()

	switch parsedCmd {
	case xicCmd.FullCommand():
		os.Exit(checkError(runXIC(ctx, cfg, xicParams)))
	case profileCmd.FullCommand():
		os.Exit(checkError(runProfile(ctx, cfg, profileParams)))
	case inspectCmd.FullCommand():
		os.Exit(checkError(inspect(os.Stdout, *inspectArchive)))
	case componentAddCmd.FullCommand():
		os.Exit(checkError(addComponents(ctx, cfg, *componentAddNames)))
	case componentListCmd.FullCommand():
		os.Exit(checkError(listComponents(ctx, cfg)))
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
}

func levelOption(name string) level.Option {
	switch strings.ToLower(name) {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

func checkError(err error) int {
	if err == nil {
		return 0
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if chromatogram.IsArchiveError(err) {
		return 2
	}

	return 1
}
