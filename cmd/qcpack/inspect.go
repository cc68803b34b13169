package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"

	"github.com/maspeqc/qcpack/archive"
	"github.com/maspeqc/qcpack/peaklist"
)

func inspect(out io.Writer, path string) error {
	b, err := archive.Open(afero.NewOsFs(), path)
	if err != nil {
		return err
	}
	defer b.Close()

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Member", "Kind", "Key", "Size"})
	for _, m := range b.Members() {
		table.Append([]string{m.Name, m.Kind.String(), m.Key, humanize.Bytes(m.Size)})
	}
	table.Render()

	lists := tablewriter.NewWriter(out)
	lists.SetHeader([]string{"Peak list", "Raw file", "Rows", "With window", "Companion", "Warnings"})
	for _, m := range b.PeakLists() {
		row, err := inspectPeakList(b, m)
		if err != nil {
			row = []string{m.Name, "-", "-", "-", "-", err.Error()}
		}
		lists.Append(row)
	}
	lists.Render()

	return nil
}

func inspectPeakList(b *archive.Bundle, m archive.Member) ([]string, error) {
	rc, err := b.Open(m)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	pl, err := peaklist.Parse(rc, peaklist.WithSource(m.Name))
	if err != nil {
		return nil, err
	}

	_, _, ok := b.RawDataFile(pl.RawFile)
	companion := "ok"
	if !ok {
		companion = "missing"
	}

	return []string{
		m.Name,
		pl.RawFile,
		fmt.Sprint(len(pl.Peaks)),
		fmt.Sprint(len(pl.WithWindow())),
		companion,
		fmt.Sprint(len(pl.Warnings)),
	}, nil
}
