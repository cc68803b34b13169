// Package qcpack turns mass-spectrometry QC runs into compact, storable time
// series.
//
// Two independent paths share one compaction scheme:
//
//   - Chromatograms. An exported analysis bundle (a zip of peak-list
//     descriptors, raw-scan metadata descriptors and raw-scan binary payloads)
//     is extracted, every peak list is joined with its raw scans, and one
//     extracted-ion chromatogram is reconstructed per compound peak.
//   - Pressure profiles. A pump pressure trace sampled in minutes is binned
//     into whole seconds.
//
// Both series are rounded, optionally stripped of interior zero runs and delta
// encoded on the time axis (package compact) before being written to a store.
//
// # Basic Usage
//
//	st, _ := qcpack.OpenStore("qc.db")
//	defer st.Close()
//
//	st.AddComponent(ctx, "Caffeine")
//	report, err := qcpack.ProcessArchive(ctx, st, runID, "run.zip", workDir)
//
//	profiles, err := qcpack.ProcessProfiles(ctx, st, runID, "traces/", nil)
//
// # Package Structure
//
// This package provides top-level wrappers for the common case of files on
// the local disk and a SQLite store. The pipeline stages live in their own
// packages: archive, peaklist, scan, xic, compact, profile, chromatogram and
// store.
package qcpack

import (
	"context"

	"github.com/spf13/afero"

	"github.com/maspeqc/qcpack/chromatogram"
	"github.com/maspeqc/qcpack/profile"
	"github.com/maspeqc/qcpack/store"
	"github.com/maspeqc/qcpack/store/sqlite"
)

// OpenStore opens (and migrates) the SQLite store at path.
func OpenStore(path string) (store.Store, error) {
	return sqlite.Open(path)
}

// ProcessArchive reconstructs and stores the chromatograms of the bundle at
// archivePath, extracting it into workDir. The caller removes workDir.
func ProcessArchive(ctx context.Context, st store.ChromatogramWriter, runID int64, archivePath, workDir string, opts ...chromatogram.Option) (*chromatogram.Report, error) {
	p, err := chromatogram.NewProcessor(afero.NewOsFs(), st, opts...)
	if err != nil {
		return nil, err
	}

	return p.Process(ctx, runID, archivePath, workDir)
}

// ProcessProfiles bins and stores the pressure traces found as
// "<traceDir>/<channel>.csv". Nil channels selects profile.DefaultChannels.
func ProcessProfiles(ctx context.Context, st store.ProfileWriter, runID int64, traceDir string, channels []string, opts ...profile.Option) (*profile.Report, error) {
	p, err := profile.NewProcessor(st, profile.NewCSVProvider(afero.NewOsFs(), traceDir), opts...)
	if err != nil {
		return nil, err
	}

	return p.Process(ctx, runID, channels)
}
