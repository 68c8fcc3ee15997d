// Package platform describes the target a native ABI binding is generated
// for: architecture, operating system, byte order, calling convention, and
// the C data model those imply.
package platform

import (
	goruntime "runtime"
	"strings"

	"github.com/wippyai/wasmbind/errors"
)

// Arch is a CPU architecture in artifact naming.
type Arch string

const (
	X86_64  Arch = "x86_64"
	AArch64 Arch = "aarch64"
	RISCV64 Arch = "riscv64gc"
	S390X   Arch = "s390x"
)

// OS is an operating system in artifact naming.
type OS string

const (
	Linux   OS = "linux"
	MacOS   OS = "macos"
	Windows OS = "windows"
	Android OS = "android"
)

// Endian is the byte order of the target.
type Endian uint8

const (
	LittleEndian Endian = iota
	BigEndian
)

func (e Endian) String() string {
	if e == BigEndian {
		return "big"
	}
	return "little"
}

// CallConv is the C calling convention of the target.
type CallConv string

const (
	SysV       CallConv = "sysv"
	Win64      CallConv = "win64"
	AAPCS64    CallConv = "aapcs64"
	AppleARM64 CallConv = "apple-aarch64"
	RISCVLP64D CallConv = "lp64d"
	S390XELF   CallConv = "s390x-elf"
)

// Platform is a fully resolved target.
type Platform struct {
	Arch     Arch
	OS       OS
	Endian   Endian
	CallConv CallConv
}

type archInfo struct {
	goarch  string
	endian  Endian
	aliases []string
}

var arches = map[Arch]archInfo{
	X86_64:  {goarch: "amd64", aliases: []string{"x64"}},
	AArch64: {goarch: "arm64", aliases: []string{"arm64"}},
	RISCV64: {goarch: "riscv64", aliases: []string{"riscv64"}},
	S390X:   {goarch: "s390x", endian: BigEndian},
}

var oses = map[OS]struct {
	goos    string
	aliases []string
}{
	Linux:   {goos: "linux"},
	MacOS:   {goos: "darwin", aliases: []string{"darwin", "apple", "osx"}},
	Windows: {goos: "windows", aliases: []string{"win32", "mingw", "msvc"}},
	Android: {goos: "android"},
}

// New completes a platform from its architecture and OS.
func New(arch Arch, os OS) (Platform, error) {
	ai, ok := arches[arch]
	if !ok {
		return Platform{}, errors.Unsupported(errors.PhaseGenerate, "architecture "+string(arch))
	}
	if _, ok := oses[os]; !ok {
		return Platform{}, errors.Unsupported(errors.PhaseGenerate, "operating system "+string(os))
	}
	return Platform{Arch: arch, OS: os, Endian: ai.endian, CallConv: callConv(arch, os)}, nil
}

func callConv(arch Arch, os OS) CallConv {
	switch arch {
	case X86_64:
		if os == Windows {
			return Win64
		}
		return SysV
	case AArch64:
		if os == MacOS {
			return AppleARM64
		}
		return AAPCS64
	case RISCV64:
		return RISCVLP64D
	default:
		return S390XELF
	}
}

// Host returns the platform the current binary runs on.
func Host() (Platform, error) {
	return FromGo(goruntime.GOOS, goruntime.GOARCH)
}

// FromGo maps a GOOS/GOARCH pair to a platform.
func FromGo(goos, goarch string) (Platform, error) {
	arch, ok := lookupArch(goarch)
	if !ok {
		return Platform{}, errors.Unsupported(errors.PhaseGenerate, "GOARCH "+goarch)
	}
	os, ok := lookupOS(goos)
	if !ok {
		return Platform{}, errors.Unsupported(errors.PhaseGenerate, "GOOS "+goos)
	}
	return New(arch, os)
}

// Parse reads a target triple. It accepts the short artifact form
// ("aarch64-macos") and the long compiler form ("x86_64-unknown-linux-gnu",
// "aarch64-apple-darwin").
func Parse(triple string) (Platform, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(triple)), "-")
	if len(parts) < 2 || parts[0] == "" {
		return Platform{}, errors.InvalidInput(errors.PhaseGenerate, "malformed target triple "+triple)
	}
	arch, ok := lookupArch(parts[0])
	if !ok {
		return Platform{}, errors.Unsupported(errors.PhaseGenerate, "architecture "+parts[0])
	}
	// "aarch64-linux-android" names both; the more specific one wins.
	linux := false
	for _, p := range parts[1:] {
		os, ok := lookupOS(p)
		if !ok {
			continue
		}
		if os != Linux {
			return New(arch, os)
		}
		linux = true
	}
	if linux {
		return New(arch, Linux)
	}
	return Platform{}, errors.Unsupported(errors.PhaseGenerate, "operating system in "+triple)
}

func lookupArch(s string) (Arch, bool) {
	for a, info := range arches {
		if string(a) == s || info.goarch == s {
			return a, true
		}
		for _, alias := range info.aliases {
			if alias == s {
				return a, true
			}
		}
	}
	return "", false
}

func lookupOS(s string) (OS, bool) {
	for o, info := range oses {
		if string(o) == s || info.goos == s {
			return o, true
		}
		for _, alias := range info.aliases {
			if alias == s {
				return o, true
			}
		}
	}
	return "", false
}

// Triple returns the short artifact triple, e.g. "x86_64-linux".
func (p Platform) Triple() string {
	return string(p.Arch) + "-" + string(p.OS)
}

func (p Platform) String() string {
	return p.Triple() + " (" + p.Endian.String() + "-endian, " + string(p.CallConv) + ")"
}

// GOOS returns the Go operating system name.
func (p Platform) GOOS() string {
	return oses[p.OS].goos
}

// GOARCH returns the Go architecture name.
func (p Platform) GOARCH() string {
	return arches[p.Arch].goarch
}

// BuildConstraint returns the //go:build expression selecting this platform.
func (p Platform) BuildConstraint() string {
	return p.GOOS() + " && " + p.GOARCH()
}

// PointerSize is the size of a data pointer in bytes.
func (p Platform) PointerSize() int {
	return 8
}

// LongSize is the size of C long: 4 on Windows (LLP64), 8 elsewhere (LP64).
func (p Platform) LongSize() int {
	if p.OS == Windows {
		return 4
	}
	return 8
}

// CharSigned reports whether plain C char is signed.
func (p Platform) CharSigned() bool {
	switch p.Arch {
	case AArch64:
		// Apple and Windows keep char signed on arm64.
		return p.OS == MacOS || p.OS == Windows
	case RISCV64, S390X:
		return false
	default:
		return true
	}
}

// Scalar describes a C scalar type on a platform.
type Scalar struct {
	Size   int
	Align  int
	Signed bool
	Float  bool
}

// CScalar returns the layout of a builtin or <stdint.h> C type spelled in
// canonical form ("unsigned long long", "int32_t", "size_t", "double").
func (p Platform) CScalar(name string) (Scalar, bool) {
	ptr := p.PointerSize()
	long := p.LongSize()
	switch name {
	case "_Bool", "bool":
		return Scalar{Size: 1, Align: 1}, true
	case "char":
		return Scalar{Size: 1, Align: 1, Signed: p.CharSigned()}, true
	case "signed char", "int8_t":
		return Scalar{Size: 1, Align: 1, Signed: true}, true
	case "unsigned char", "uint8_t":
		return Scalar{Size: 1, Align: 1}, true
	case "short", "int16_t":
		return Scalar{Size: 2, Align: 2, Signed: true}, true
	case "unsigned short", "uint16_t":
		return Scalar{Size: 2, Align: 2}, true
	case "int", "int32_t":
		return Scalar{Size: 4, Align: 4, Signed: true}, true
	case "unsigned int", "uint32_t":
		return Scalar{Size: 4, Align: 4}, true
	case "long":
		return Scalar{Size: long, Align: long, Signed: true}, true
	case "unsigned long":
		return Scalar{Size: long, Align: long}, true
	case "long long", "int64_t":
		return Scalar{Size: 8, Align: 8, Signed: true}, true
	case "unsigned long long", "uint64_t":
		return Scalar{Size: 8, Align: 8}, true
	case "size_t", "uintptr_t":
		return Scalar{Size: ptr, Align: ptr}, true
	case "ptrdiff_t", "intptr_t", "ssize_t":
		return Scalar{Size: ptr, Align: ptr, Signed: true}, true
	case "float":
		return Scalar{Size: 4, Align: 4, Signed: true, Float: true}, true
	case "double":
		return Scalar{Size: 8, Align: 8, Signed: true, Float: true}, true
	}
	return Scalar{}, false
}
