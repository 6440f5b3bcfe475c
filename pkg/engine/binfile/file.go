package binfile

import (
	"context"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/harun/knife/pkg/engine"
)

// Format names
const (
	FormatELF   = "ELF"
	FormatPE    = "PE"
	FormatMachO = "Mach-O"
)

// Analysis states
const (
	StateLoaded   = "loaded"
	StateAnalyzed = "analyzed"
)

// Section is one section of an executable
type Section struct {
	Name string `json:"name"`
	Addr uint64 `json:"addr"`
	Size uint64 `json:"size"`
	Kind string `json:"kind,omitempty"`
}

// Symbol is one symbol table entry
type Symbol struct {
	Name string `json:"name"`
	Addr uint64 `json:"addr"`
	Size uint64 `json:"size,omitempty"`
}

// StringRef is a printable string found in the file
type StringRef struct {
	Offset int64  `json:"offset"`
	Value  string `json:"value"`
}

// File is an opened executable. It implements engine.Handle.
type File struct {
	id     string
	path   string
	format string
	arch   string
	entry  uint64
	start  uint64
	length uint64
	size   int64

	sections []Section
	symbols  []Symbol
	imports  []string

	mu       sync.Mutex
	f        *os.File
	closed   bool
	state    string
	strs     []StringRef
	strsMin  int
	analyzed bool
}

// Open parses the executable at path
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if st.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, engine.ErrUnsupportedFormat)
	}

	bf := &File{
		id:    uuid.NewString(),
		path:  path,
		size:  st.Size(),
		f:     f,
		state: StateLoaded,
	}

	switch {
	case bf.parseELF(f) == nil:
	case bf.parsePE(f) == nil:
	case bf.parseMachO(f) == nil:
	default:
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, engine.ErrUnsupportedFormat)
	}

	sort.Slice(bf.symbols, func(i, j int) bool {
		if bf.symbols[i].Addr != bf.symbols[j].Addr {
			return bf.symbols[i].Addr < bf.symbols[j].Addr
		}
		return bf.symbols[i].Name < bf.symbols[j].Name
	})
	sort.Strings(bf.imports)

	return bf, nil
}

func (b *File) parseELF(r io.ReaderAt) error {
	ef, err := elf.NewFile(r)
	if err != nil {
		return err
	}
	defer ef.Close()

	b.format = FormatELF
	b.arch = strings.ToLower(strings.TrimPrefix(ef.Machine.String(), "EM_"))
	b.entry = ef.Entry

	var lo, hi uint64
	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if lo == 0 || prog.Vaddr < lo {
			lo = prog.Vaddr
		}
		if end := prog.Vaddr + prog.Memsz; end > hi {
			hi = end
		}
	}
	b.start = lo
	if hi > lo {
		b.length = hi - lo
	}

	for _, s := range ef.Sections {
		if s.Name == "" {
			continue
		}
		b.sections = append(b.sections, Section{Name: s.Name, Addr: s.Addr, Size: s.Size, Kind: s.Type.String()})
	}

	syms, _ := ef.Symbols()
	dyn, _ := ef.DynamicSymbols()
	for _, s := range append(syms, dyn...) {
		if s.Name == "" {
			continue
		}
		b.symbols = append(b.symbols, Symbol{Name: s.Name, Addr: s.Value, Size: s.Size})
	}

	libs, _ := ef.ImportedLibraries()
	imported, _ := ef.ImportedSymbols()
	b.imports = append(b.imports, libs...)
	for _, s := range imported {
		if s.Library != "" {
			b.imports = append(b.imports, s.Name+"@"+s.Library)
		} else {
			b.imports = append(b.imports, s.Name)
		}
	}
	return nil
}

var peMachines = map[uint16]string{
	pe.IMAGE_FILE_MACHINE_I386:  "x86",
	pe.IMAGE_FILE_MACHINE_AMD64: "x86_64",
	pe.IMAGE_FILE_MACHINE_ARM:   "arm",
	pe.IMAGE_FILE_MACHINE_ARM64: "aarch64",
}

func (b *File) parsePE(r io.ReaderAt) error {
	pf, err := pe.NewFile(r)
	if err != nil {
		return err
	}
	defer pf.Close()

	b.format = FormatPE
	b.arch = peMachines[pf.FileHeader.Machine]
	if b.arch == "" {
		b.arch = fmt.Sprintf("machine_%#x", pf.FileHeader.Machine)
	}

	var imageBase uint64
	switch oh := pf.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		imageBase = uint64(oh.ImageBase)
		b.entry = imageBase + uint64(oh.AddressOfEntryPoint)
		b.length = uint64(oh.SizeOfImage)
	case *pe.OptionalHeader64:
		imageBase = oh.ImageBase
		b.entry = imageBase + uint64(oh.AddressOfEntryPoint)
		b.length = uint64(oh.SizeOfImage)
	}
	b.start = imageBase

	for _, s := range pf.Sections {
		b.sections = append(b.sections, Section{
			Name: s.Name,
			Addr: imageBase + uint64(s.VirtualAddress),
			Size: uint64(s.VirtualSize),
			Kind: fmt.Sprintf("%#x", s.Characteristics),
		})
	}

	for _, s := range pf.Symbols {
		if s.Name == "" {
			continue
		}
		b.symbols = append(b.symbols, Symbol{Name: s.Name, Addr: uint64(s.Value)})
	}

	libs, _ := pf.ImportedLibraries()
	imported, _ := pf.ImportedSymbols()
	b.imports = append(b.imports, libs...)
	b.imports = append(b.imports, imported...)
	return nil
}

func (b *File) parseMachO(r io.ReaderAt) error {
	mf, err := macho.NewFile(r)
	if err != nil {
		return err
	}
	defer mf.Close()

	b.format = FormatMachO
	b.arch = strings.ToLower(strings.TrimPrefix(mf.Cpu.String(), "Cpu"))

	var lo, hi uint64
	for _, l := range mf.Loads {
		seg, ok := l.(*macho.Segment)
		if !ok || seg.Name == "__PAGEZERO" {
			continue
		}
		if lo == 0 || seg.Addr < lo {
			lo = seg.Addr
		}
		if end := seg.Addr + seg.Memsz; end > hi {
			hi = end
		}
	}
	b.start = lo
	if hi > lo {
		b.length = hi - lo
	}

	for _, s := range mf.Sections {
		b.sections = append(b.sections, Section{Name: s.Name, Addr: s.Addr, Size: s.Size, Kind: s.Seg})
	}

	if mf.Symtab != nil {
		for _, s := range mf.Symtab.Syms {
			if s.Name == "" {
				continue
			}
			b.symbols = append(b.symbols, Symbol{Name: s.Name, Addr: s.Value})
		}
	}

	libs, _ := mf.ImportedLibraries()
	imported, _ := mf.ImportedSymbols()
	b.imports = append(b.imports, libs...)
	b.imports = append(b.imports, imported...)
	return nil
}

// ID returns the handle identity
func (b *File) ID() string {
	return b.id
}

// Path returns the file path
func (b *File) Path() string {
	return b.path
}

// Close releases the underlying file. Closing twice returns engine.ErrClosed.
func (b *File) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return engine.ErrClosed
	}
	b.closed = true
	b.strs = nil
	return b.f.Close()
}

// Closed reports whether Close has been called
func (b *File) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Info describes the file
func (b *File) Info() engine.Info {
	b.mu.Lock()
	state := b.state
	b.mu.Unlock()

	return engine.Normalize(engine.Info{
		Filename:      b.path,
		ViewType:      b.format,
		Arch:          b.arch,
		AnalysisState: state,
		Start:         b.start,
		Length:        b.length,
		Repr:          b.repr(),
	})
}

func (b *File) repr() string {
	return fmt.Sprintf("<%s: '%s', start %#x, len %#x>", b.format, b.path, b.start, b.length)
}

// Analyze scans the file for printable strings of at least minLen bytes.
// The scan observes ctx between chunks.
func (b *File) Analyze(ctx context.Context, minLen int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return engine.ErrClosed
	}
	if b.analyzed && b.strsMin == minLen {
		return nil
	}

	strs, err := scanStrings(ctx, io.NewSectionReader(b.f, 0, b.size), minLen)
	if err != nil {
		return err
	}
	b.strs = strs
	b.strsMin = minLen
	b.analyzed = true
	b.state = StateAnalyzed
	return nil
}

// Strings returns the strings found by the last analysis, analyzing first if
// needed.
func (b *File) Strings(ctx context.Context, minLen int) ([]StringRef, error) {
	if err := b.Analyze(ctx, minLen); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.strs, nil
}

func (b *File) checkOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return engine.ErrClosed
	}
	return nil
}

const (
	scanChunk  = 64 * 1024
	maxStrings = 200000
)

func scanStrings(ctx context.Context, r io.Reader, minLen int) ([]StringRef, error) {
	if minLen < 1 {
		minLen = 1
	}

	var (
		out    []StringRef
		run    []byte
		offset int64
		start  int64
	)
	buf := make([]byte, scanChunk)

	flush := func() {
		if len(run) >= minLen && len(out) < maxStrings {
			out = append(out, StringRef{Offset: start, Value: string(run)})
		}
		run = run[:0]
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, context.Cause(ctx)
		}
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			c := buf[i]
			if (c >= 0x20 && c < 0x7f) || c == '\t' {
				if len(run) == 0 {
					start = offset + int64(i)
				}
				run = append(run, c)
				continue
			}
			flush()
		}
		offset += int64(n)
		if err == io.EOF {
			flush()
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
