package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	env "github.com/xyproto/env/v2"

	"github.com/jakcron/cxitool/internal/crypto"
	"github.com/jakcron/cxitool/pkg/cxispec"
	"github.com/jakcron/cxitool/pkg/log"
	"github.com/jakcron/cxitool/pkg/ncch"
)

type buildFlags struct {
	icon        string
	banner      string
	romfs       string
	uniqueID    string
	productCode string
	title       string
}

func newBuildCommand() *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build <elf> <spec.yaml> <out.cxi>",
		Short: "Build a .cxi container from an ELF and a capability spec",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args[0], args[1], args[2], flags)
		},
	}

	cmd.Flags().StringVar(&flags.icon, "icon", "", "path to a SMDH icon asset")
	cmd.Flags().StringVar(&flags.banner, "banner", "", "path to a banner asset")
	cmd.Flags().StringVar(&flags.romfs, "romfs", "", "path to a RomFS source directory")
	cmd.Flags().StringVar(&flags.uniqueID, "uniqueid", "", "override the title id's unique-id field")
	cmd.Flags().StringVar(&flags.productCode, "productcode", "", "override the product code")
	cmd.Flags().StringVar(&flags.title, "title", "", "override the application title")

	return cmd
}

func runBuild(cmd *cobra.Command, elfPath, specPath, outPath string, flags buildFlags) error {
	log.ResetWarningCount()

	elfBytes, err := os.ReadFile(elfPath)
	if err != nil {
		return fmt.Errorf("reading elf: %w", err)
	}

	specBytes, err := os.ReadFile(specPath)
	if err != nil {
		return fmt.Errorf("reading spec: %w", err)
	}

	cfg := cxispec.Defaults()
	if err := cxispec.Parse(specBytes, &cfg); err != nil {
		return fmt.Errorf("parsing spec: %w", err)
	}

	overrides := cxispec.CLIOverrides{
		UniqueID:    flags.uniqueID,
		ProductCode: flags.productCode,
		Title:       flags.title,
	}
	if err := overrides.Apply(&cfg); err != nil {
		return err
	}

	icon, err := readOptional(flags.icon)
	if err != nil {
		return fmt.Errorf("reading icon: %w", err)
	}
	banner, err := readOptional(flags.banner)
	if err != nil {
		return fmt.Errorf("reading banner: %w", err)
	}

	signer, err := resolveSigner()
	if err != nil {
		return err
	}

	out, err := ncch.Build(ncch.Inputs{
		ELF:      elfBytes,
		Spec:     cfg,
		Icon:     icon,
		Banner:   banner,
		RomFSDir: flags.romfs,
		Signer:   signer,
	})
	if err != nil {
		return fmt.Errorf("building cxi: %w", err)
	}

	if err := out.WriteFile(outPath); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %s\n", outPath, out.Summary())
	if n := log.WarningCount(); n > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d warning(s) — see above\n", n)
	}
	return nil
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}

// resolveSigner loads an RSA signing key from CXITOOL_RSA_KEY if set,
// otherwise returns an unsigned Signer (0xFF-filled signature fields),
// matching the original tool's own default of never passing a real key.
func resolveSigner() (*crypto.Signer, error) {
	keyPath := env.Str("CXITOOL_RSA_KEY", "")
	if keyPath == "" {
		return crypto.NewUnsigned(), nil
	}

	pemBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading CXITOOL_RSA_KEY file: %w", err)
	}
	signer, err := crypto.LoadSigner(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("loading CXITOOL_RSA_KEY: %w", err)
	}
	return signer, nil
}
