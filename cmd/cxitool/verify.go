package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jakcron/cxitool/internal/bytesx"
	"github.com/jakcron/cxitool/pkg/exheader"
	"github.com/jakcron/cxitool/pkg/ncch"
)

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <cxi>",
		Short: "Check a built .cxi container's section gaps are zero-filled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, args[0])
		},
	}
}

// section pairs a label with its on-disk extent, for gap-checking.
type section struct {
	label string
	ncch.Section
}

func runVerify(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	info, err := ncch.ParseHeader(data)
	if err != nil {
		return fmt.Errorf("parsing ncch header: %w", err)
	}

	exheaderExtent := info.Exheader
	if exheaderExtent.Size != 0 {
		// The Access Descriptor is written straight after the Extended
		// Header, so it belongs to the same on-disk extent.
		exheaderExtent.Size += exheader.AccessDescriptorSize
	}

	sections := []section{
		{"exheader", exheaderExtent},
		{"logo", info.Logo},
		{"plain region", info.PlainRegion},
		{"exefs", info.Exefs},
		{"romfs", info.Romfs},
	}
	present := sections[:0]
	for _, s := range sections {
		if s.Size != 0 {
			present = append(present, s)
		}
	}
	sort.Slice(present, func(i, j int) bool { return present[i].Offset < present[j].Offset })

	pos := uint32(ncch.Size)
	for _, s := range present {
		if s.Offset < pos {
			return fmt.Errorf("%s at 0x%x overlaps the previous section (ends at 0x%x)", s.label, s.Offset, pos)
		}
		if s.Offset > pos {
			gap := data[pos:s.Offset]
			if !bytesx.IsZeroFilled(gap) {
				return fmt.Errorf("gap before %s (0x%x-0x%x) is not zero-filled", s.label, pos, s.Offset)
			}
		}
		pos = s.Offset + s.Size
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: layout consistent, %d bytes, all gaps zero-filled\n", path, info.TotalSize)
	return nil
}
