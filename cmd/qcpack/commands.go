package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/maspeqc/qcpack/chromatogram"
	"github.com/maspeqc/qcpack/compact"
	"github.com/maspeqc/qcpack/config"
	"github.com/maspeqc/qcpack/profile"
	"github.com/maspeqc/qcpack/store/sqlite"
	"github.com/maspeqc/qcpack/xic"
)

type xicParams struct {
	archive string
	runID   int64
}

func addEncodingFlags(cmd *kingpin.CmdClause, cfg *config.Config) {
	cmd.Flag("format", "Payload format: json or packed.").Default(cfg.PayloadFormat).StringVar(&cfg.PayloadFormat)
	cmd.Flag("compression", "Compression of packed payloads: none, zstd, s2 or lz4.").Default(cfg.Compression).StringVar(&cfg.Compression)
}

func addXICParams(cmd *kingpin.CmdClause, cfg *config.Config) *xicParams {
	params := &xicParams{}
	cmd.Arg("archive", "Analysis bundle path.").Required().StringVar(&params.archive)
	cmd.Flag("run-id", "Run the chromatograms belong to.").Required().Int64Var(&params.runID)
	cmd.Flag("work-dir", "Directory receiving the per-run extraction directory.").Default(cfg.WorkDir).StringVar(&cfg.WorkDir)
	cmd.Flag("keep-work-dir", "Keep the extracted files.").Default(fmt.Sprint(cfg.KeepWorkDir)).BoolVar(&cfg.KeepWorkDir)
	cmd.Flag("polarity", "Only walk scans of this polarity (+ or -).").Default(cfg.Polarity).StringVar(&cfg.Polarity)
	cmd.Flag("workers", "Peaks reconstructed concurrently.").Default(fmt.Sprint(cfg.Workers)).IntVar(&cfg.Workers)
	addEncodingFlags(cmd, cfg)

	return params
}

func newEncoder(cfg config.Config) (*compact.Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	payload, compression, err := cfg.Encoding()
	if err != nil {
		return nil, err
	}

	return compact.NewEncoder(payload, compression)
}

func runXIC(ctx context.Context, cfg config.Config, params *xicParams) error {
	enc, err := newEncoder(cfg)
	if err != nil {
		return err
	}

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	base := cfg.WorkDir
	if base == "" {
		base = os.TempDir()
	}
	workDir := filepath.Join(base, "qcpack-"+ulid.Make().String())
	if !cfg.KeepWorkDir {
		defer os.RemoveAll(workDir)
	}

	p, err := chromatogram.NewProcessor(afero.NewOsFs(), st,
		chromatogram.WithLogger(logger),
		chromatogram.WithEncoder(enc),
		chromatogram.WithXIC(xic.WithWorkers(cfg.Workers), xic.WithPolarity(cfg.Polarity)),
	)
	if err != nil {
		return err
	}

	report, err := p.Process(ctx, params.runID, params.archive, workDir)
	if err != nil {
		return err
	}

	var stored uint64
	for _, s := range report.Series {
		stored += uint64(s.Bytes) //nolint:gosec
	}
	level.Info(logger).Log(
		"msg", "stored chromatograms",
		"run", params.runID,
		"peak_lists", len(report.PeakLists),
		"series", len(report.Series),
		"size", humanize.Bytes(stored),
		"encoding", enc.Encoding(),
		"warnings", warningCount(report.Warnings),
	)
	if cfg.KeepWorkDir {
		level.Info(logger).Log("msg", "kept work dir", "path", workDir)
	}

	return nil
}

type profileParams struct {
	dir         string
	runID       int64
	channels    []string
	aggregation string
}

func addProfileParams(cmd *kingpin.CmdClause, cfg *config.Config) *profileParams {
	params := &profileParams{}
	cmd.Arg("dir", "Directory holding <channel>.csv traces.").Required().ExistingDirVar(&params.dir)
	cmd.Flag("run-id", "Run the profiles belong to.").Required().Int64Var(&params.runID)
	cmd.Flag("channel", "Channel to process, repeatable. Defaults to lp, np and mp.").StringsVar(&params.channels)
	cmd.Flag("aggregation", "Bin aggregation.").Default("mean").EnumVar(&params.aggregation, "mean", "max")
	addEncodingFlags(cmd, cfg)

	return params
}

func runProfile(ctx context.Context, cfg config.Config, params *profileParams) error {
	enc, err := newEncoder(cfg)
	if err != nil {
		return err
	}

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	agg := profile.Mean
	if params.aggregation == "max" {
		agg = profile.Max
	}

	p, err := profile.NewProcessor(st, profile.NewCSVProvider(afero.NewOsFs(), params.dir),
		profile.WithLogger(logger),
		profile.WithEncoder(enc),
		profile.WithAggregation(agg),
	)
	if err != nil {
		return err
	}

	report, err := p.Process(ctx, params.runID, params.channels)
	if err != nil {
		return err
	}

	for _, ch := range report.Channels {
		level.Info(logger).Log("msg", "stored pressure profile", "run", params.runID, "channel", ch.Channel,
			"samples", ch.Samples, "bins", ch.Bins, "size", humanize.Bytes(uint64(ch.Bytes))) //nolint:gosec
	}
	if n := warningCount(report.Warnings); n > 0 {
		level.Warn(logger).Log("msg", "skipped pressure channels", "run", params.runID, "count", n)
	}

	return nil
}

func addComponents(ctx context.Context, cfg config.Config, names []string) error {
	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, name := range names {
		id, err := st.AddComponent(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%d\t%s\n", id, name)
	}

	return nil
}

func listComponents(ctx context.Context, cfg config.Config) error {
	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	components, err := st.Components(ctx)
	if err != nil {
		return err
	}
	for _, c := range components {
		fmt.Fprintf(os.Stdout, "%d\t%s\n", c.ID, c.Name)
	}

	return nil
}

func warningCount(err error) int {
	if merr, ok := err.(*multierror.Error); ok {
		return merr.Len()
	}
	if err != nil {
		return 1
	}

	return 0
}
