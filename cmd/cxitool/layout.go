package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jakcron/cxitool/pkg/ncch"
)

func newLayoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "layout <cxi>",
		Short: "Print the section layout of a built .cxi container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(cmd, args[0])
		},
	}
}

func runLayout(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	info, err := ncch.ParseHeader(data)
	if err != nil {
		return fmt.Errorf("parsing ncch header: %w", err)
	}

	h := table.NewWriter()
	h.SetOutputMirror(cmd.OutOrStdout())
	h.SetTitle("NCCH Header")
	h.AppendHeader(table.Row{"Title ID", "Product Code", "Maker", "Content Type", "Form", "Format Version"})
	h.AppendRow(table.Row{
		fmt.Sprintf("0x%016x", info.TitleID),
		info.ProductCode,
		info.MakerCode,
		contentTypeName(info.ContentType),
		formTypeName(info.FormType),
		info.FormatVersion,
	})
	h.Render()

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetTitle("Sections")
	t.AppendHeader(table.Row{"Section", "Offset", "Size"})
	t.AppendRow(table.Row{"Exheader", fmt.Sprintf("0x%x", info.Exheader.Offset), fmt.Sprintf("0x%x", info.Exheader.Size)})
	t.AppendRow(table.Row{"Logo", fmt.Sprintf("0x%x", info.Logo.Offset), fmt.Sprintf("0x%x", info.Logo.Size)})
	t.AppendRow(table.Row{"Plain Region", fmt.Sprintf("0x%x", info.PlainRegion.Offset), fmt.Sprintf("0x%x", info.PlainRegion.Size)})
	t.AppendRow(table.Row{"ExeFS", fmt.Sprintf("0x%x", info.Exefs.Offset), fmt.Sprintf("0x%x", info.Exefs.Size)})
	t.AppendRow(table.Row{"RomFS", fmt.Sprintf("0x%x", info.Romfs.Offset), fmt.Sprintf("0x%x", info.Romfs.Size)})
	t.AppendRow(table.Row{"Total", "0x0", fmt.Sprintf("0x%x", info.TotalSize)})
	t.Render()

	return nil
}

func contentTypeName(c ncch.ContentType) string {
	switch c {
	case ncch.ContentApplication:
		return "Application"
	case ncch.ContentSystemUpdate:
		return "SystemUpdate"
	case ncch.ContentManual:
		return "Manual"
	case ncch.ContentChild:
		return "Child"
	case ncch.ContentTrial:
		return "Trial"
	case ncch.ContentExtendedSystemUpdate:
		return "ExtendedSystemUpdate"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

func formTypeName(f ncch.FormType) string {
	switch f {
	case ncch.FormUnassigned:
		return "Unassigned"
	case ncch.FormSimpleContent:
		return "SimpleContent"
	case ncch.FormExecutableWithoutRomfs:
		return "ExecutableWithoutRomfs"
	case ncch.FormExecutable:
		return "Executable"
	default:
		return fmt.Sprintf("unknown(%d)", f)
	}
}
