package ncch

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/jakcron/cxitool/internal/bytesx"
	"github.com/jakcron/cxitool/internal/crypto"
	"github.com/jakcron/cxitool/pkg/cxispec"
	"github.com/jakcron/cxitool/pkg/elfcode"
	"github.com/jakcron/cxitool/pkg/exefs"
	"github.com/jakcron/cxitool/pkg/exheader"
	"github.com/jakcron/cxitool/pkg/ivfc"
	"github.com/jakcron/cxitool/pkg/log"
	"github.com/jakcron/cxitool/pkg/romfs"
	"github.com/jakcron/cxitool/pkg/romfs/scan"
)

// Inputs gathers everything the seven-phase build pipeline needs: the raw
// ELF image, the fully-resolved spec config (defaults + CLI overrides +
// parsed YAML already applied), optional icon/banner blobs, an optional
// RomFS source directory, and a signer for the NCCH header and Access
// Descriptor (an unsigned signer is fine — both fields fall back to
// 0xFF-filled signatures).
type Inputs struct {
	ELF      []byte
	Spec     cxispec.Config
	Icon     []byte
	Banner   []byte
	RomFSDir string
	Signer   *crypto.Signer
}

// Output is every assembled section of a built CXI container, laid out
// exactly as WriteFile expects to stream them to disk.
type Output struct {
	Layout Layout

	Header           []byte
	Exheader         []byte
	AccessDescriptor []byte
	Logo             []byte
	PlainRegion      []byte
	Exefs            []byte
	RomfsIVFCHeader  []byte
	RomfsL2          []byte
	RomfsL0          []byte
	RomfsL1          []byte
}

// Build runs the full pipeline: extract the ELF, pack ExeFS, optionally
// scan and build a RomFS/IVFC tree, assemble the Extended Header and Access
// Descriptor, then populate and sign the NCCH header (spec.md 4.5.3).
func Build(in Inputs) (*Output, error) {
	signer := in.Signer
	if signer == nil {
		signer = crypto.NewUnsigned()
	}

	extracted, err := elfcode.Extract(in.ELF)
	if err != nil {
		return nil, fmt.Errorf("extracting ELF: %w", err)
	}
	codeBlob := extracted.BuildBlob(elfcode.PageAligned)

	exefsFiles := []exefs.File{{Name: ".code", Payload: codeBlob.Bytes}}
	if len(in.Banner) > 0 {
		exefsFiles = append(exefsFiles, exefs.File{Name: "banner", Payload: in.Banner})
	}
	if len(in.Icon) > 0 {
		exefsFiles = append(exefsFiles, exefs.File{Name: "icon", Payload: in.Icon})
	}
	exefsFiles = append(exefsFiles, exefs.File{Name: "logo", Payload: cxiLogo})

	exefsImg, err := exefs.Pack(exefsFiles)
	if err != nil {
		return nil, fmt.Errorf("packing exefs: %w", err)
	}

	var (
		romfsIVFC      *ivfc.Tree
		romfsL2Padded  []byte
		romfsTotalSize uint32
	)
	if in.RomFSDir != "" {
		root, err := scan.Scan(in.RomFSDir)
		if err != nil {
			return nil, fmt.Errorf("scanning romfs directory: %w", err)
		}
		romfsImg, err := romfs.Build(root)
		if err != nil {
			return nil, fmt.Errorf("building romfs: %w", err)
		}
		if romfsImg != nil {
			romfsIVFC = ivfc.Build(romfsImg.Bytes, romfsImg.TrueSize)
			romfsL2Padded = bytesx.PadTo(romfsImg.Bytes, ivfc.BlockSize)
			romfsTotalSize = uint32(len(romfsIVFC.Header) + len(romfsL2Padded) + len(romfsIVFC.L0) + len(romfsIVFC.L1))
		} else {
			log.Warnf("romfs directory %q contains no files; building without a romfs partition", in.RomFSDir)
		}
	}
	hasRomfs := romfsIVFC != nil

	layout := cxispec.CodeLayout{
		Text:   toExheaderSegment(extracted.Text),
		Data:   toExheaderSegment(extracted.Data),
		BssSize: extracted.Data.BSSSize(),
	}
	if extracted.Rodata != nil {
		layout.RoData = toExheaderSegment(extracted.Rodata)
	}

	exheaderCfg := in.Spec.ToExheaderConfig(layout, hasRomfs)

	exBuilt, err := exheader.Build(exheaderCfg, signer.Modulus(), signer)
	if err != nil {
		return nil, fmt.Errorf("building extended header: %w", err)
	}

	header := NewHeader()
	header.SetTitleID(in.Spec.TitleID)
	header.SetProgramID(in.Spec.ProgramID)
	header.SetProductCode(in.Spec.ProductCode)
	header.SetMakerCode(in.Spec.MakerCode)
	header.SetNoCrypto()
	header.SetPlatform(PlatformCTR)

	if hasRomfs {
		header.SetNcchType(ContentApplication, FormExecutable)
		header.SetRomfsData(romfsTotalSize, romfsIVFC.NCCHHashLen, romfsIVFC.RomFsHash())
	} else {
		header.SetNcchType(ContentApplication, FormExecutableWithoutRomfs)
	}

	header.SetExheaderData(uint32(len(exBuilt.ExHeader)), uint32(len(exBuilt.AccessDescriptor)), exBuilt.Hash)
	header.SetLogoData(LogoSize, crypto.Sha256(cxiLogo))

	var plainRegion []byte
	if extracted.ModuleID != nil {
		plainRegion = extracted.ModuleID.Payload
	}
	header.SetPlainRegionData(uint32(len(plainRegion)))

	header.SetExefsData(uint32(len(exefsImg.Bytes)), exefs.HeaderSize, exefsImg.HeaderHash)

	finalLayout, headerBytes, err := header.Build(signer)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Layout:           finalLayout,
		Header:           headerBytes,
		Exheader:         exBuilt.ExHeader,
		AccessDescriptor: exBuilt.AccessDescriptor,
		Logo:             cxiLogo,
		PlainRegion:      plainRegion,
		Exefs:            exefsImg.Bytes,
	}
	if hasRomfs {
		out.RomfsIVFCHeader = romfsIVFC.Header
		out.RomfsL2 = romfsL2Padded
		out.RomfsL0 = romfsIVFC.L0
		out.RomfsL1 = romfsIVFC.L1
	}
	return out, nil
}

func toExheaderSegment(s *elfcode.CodeSegment) exheader.CodeSegment {
	if s == nil {
		return exheader.CodeSegment{}
	}
	return exheader.CodeSegment{Address: s.Vaddr, PageNum: s.PageCount, Size: s.FileSize}
}

// Summary renders a short human-readable description of the built
// container's size, for CLI diagnostics.
func (o *Output) Summary() string {
	return fmt.Sprintf("%s (%d bytes)", humanize.Bytes(uint64(o.Layout.TotalSize)), o.Layout.TotalSize)
}

// zeroFill writes n zero bytes to f, in bounded chunks, to explicitly
// zero-fill a gap between two sections rather than relying on the
// filesystem's handling of a seek past end-of-file (spec.md 4.5.3).
func zeroFill(f *os.File, n int64) error {
	const chunkSize = 64 * 1024
	buf := make([]byte, chunkSize)
	for n > 0 {
		c := int64(len(buf))
		if c > n {
			c = n
		}
		if _, err := f.Write(buf[:c]); err != nil {
			return err
		}
		n -= c
	}
	return nil
}

// sequentialWriter tracks the current absolute write position of a file
// opened for sequential-only output, zero-filling any forward gap before
// writing the next section.
type sequentialWriter struct {
	f   *os.File
	pos int64
}

func (w *sequentialWriter) seekTo(offset uint32) error {
	target := int64(offset)
	if target < w.pos {
		return fmt.Errorf("section offset %#x precedes current write position %#x", offset, w.pos)
	}
	if target > w.pos {
		if err := zeroFill(w.f, target-w.pos); err != nil {
			return err
		}
		w.pos = target
	}
	return nil
}

func (w *sequentialWriter) write(data []byte) error {
	n, err := w.f.Write(data)
	w.pos += int64(n)
	return err
}

// WriteFile writes the assembled output to path, in section order, seeking
// forward only and explicitly zero-filling every gap (spec.md 4.5.3, phase
// 7). A zero-offset section is absent and is skipped entirely.
func (o *Output) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	w := &sequentialWriter{f: f}
	if err := w.write(o.Header); err != nil {
		return fmt.Errorf("writing ncch header: %w", err)
	}

	if o.Layout.ExheaderOffset != 0 {
		if err := w.seekTo(o.Layout.ExheaderOffset); err != nil {
			return err
		}
		if err := w.write(o.Exheader); err != nil {
			return fmt.Errorf("writing extended header: %w", err)
		}
		if err := w.write(o.AccessDescriptor); err != nil {
			return fmt.Errorf("writing access descriptor: %w", err)
		}
	}

	if o.Layout.LogoOffset != 0 {
		if err := w.seekTo(o.Layout.LogoOffset); err != nil {
			return err
		}
		if err := w.write(o.Logo); err != nil {
			return fmt.Errorf("writing logo: %w", err)
		}
	}

	if o.Layout.PlainRegionOffset != 0 {
		if err := w.seekTo(o.Layout.PlainRegionOffset); err != nil {
			return err
		}
		if err := w.write(o.PlainRegion); err != nil {
			return fmt.Errorf("writing plain region: %w", err)
		}
	}

	if o.Layout.ExefsOffset != 0 {
		if err := w.seekTo(o.Layout.ExefsOffset); err != nil {
			return err
		}
		if err := w.write(o.Exefs); err != nil {
			return fmt.Errorf("writing exefs: %w", err)
		}
	}

	if o.Layout.RomfsOffset != 0 {
		if err := w.seekTo(o.Layout.RomfsOffset); err != nil {
			return err
		}
		if err := w.write(o.RomfsIVFCHeader); err != nil {
			return fmt.Errorf("writing romfs ivfc header: %w", err)
		}
		if err := w.write(o.RomfsL2); err != nil {
			return fmt.Errorf("writing romfs level 2: %w", err)
		}
		if err := w.write(o.RomfsL0); err != nil {
			return fmt.Errorf("writing romfs level 0: %w", err)
		}
		if err := w.write(o.RomfsL1); err != nil {
			return fmt.Errorf("writing romfs level 1: %w", err)
		}
	}

	return nil
}
