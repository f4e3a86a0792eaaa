package upload

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Manipulator transforms the file at path in place. Implementations must
// leave the file either fully rewritten or untouched, and report undecodable
// input with an error matching ErrManipulation.
type Manipulator interface {
	Resize(path string, width, height int) error
	CropResize(path string, width, height int) error
	Convert(path string, format string) error
}

// Measurer is implemented by manipulators that can report pixel dimensions.
type Measurer interface {
	Dimensions(path string) (width, height int, err error)
}

type InstructionKind int

const (
	InstructionNone InstructionKind = iota
	InstructionResize
	InstructionCropResize
	InstructionConvert
	InstructionCallback
	instructionRaw
)

// CallbackFunc is a custom manipulation run against a staged file.
type CallbackFunc func(m Manipulator, path string) error

// Instruction describes what to do with a staged file. The zero value does
// nothing.
type Instruction struct {
	Kind     InstructionKind
	Width    int
	Height   int
	Format   string
	Callback CallbackFunc
	raw      string
}

func None() Instruction { return Instruction{} }

func Resize(width, height int) Instruction {
	return Instruction{Kind: InstructionResize, Width: width, Height: height}
}

func CropResize(width, height int) Instruction {
	return Instruction{Kind: InstructionCropResize, Width: width, Height: height}
}

func Convert(format string) Instruction {
	return Instruction{Kind: InstructionConvert, Format: format}
}

func Callback(fn CallbackFunc) Instruction {
	return Instruction{Kind: InstructionCallback, Callback: fn}
}

// Raw defers parsing of s until the instruction is applied.
func Raw(s string) Instruction {
	return Instruction{Kind: instructionRaw, raw: s}
}

var geometry = regexp.MustCompile(`^(c)?(\d+)x(\d+)$`)

// ParseInstruction understands "WxH" (fit inside the box), "cWxH" (cover the
// box and crop), "none" and the empty string.
func ParseInstruction(s string) (Instruction, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "none" {
		return None(), nil
	}
	m := geometry.FindStringSubmatch(s)
	if m == nil {
		return Instruction{}, fmt.Errorf("%w: %q", ErrInvalidInstruction, s)
	}
	w, _ := strconv.Atoi(m[2])
	h, _ := strconv.Atoi(m[3])
	if w <= 0 || h <= 0 {
		return Instruction{}, fmt.Errorf("%w: %q", ErrInvalidInstruction, s)
	}
	if m[1] == "c" {
		return CropResize(w, h), nil
	}
	return Resize(w, h), nil
}

func (in Instruction) String() string {
	switch in.Kind {
	case InstructionNone:
		return "none"
	case InstructionResize:
		return fmt.Sprintf("%dx%d", in.Width, in.Height)
	case InstructionCropResize:
		return fmt.Sprintf("c%dx%d", in.Width, in.Height)
	case InstructionConvert:
		return "convert:" + in.Format
	case InstructionCallback:
		return "callback"
	default:
		return in.raw
	}
}

func (in Instruction) apply(m Manipulator, path string) error {
	if in.Kind == instructionRaw {
		parsed, err := ParseInstruction(in.raw)
		if err != nil {
			return err
		}
		in = parsed
	}
	if in.Kind == InstructionNone {
		return nil
	}
	if m == nil && in.Kind != InstructionCallback {
		return fmt.Errorf("%w: cannot apply %s", ErrNoManipulator, in)
	}
	switch in.Kind {
	case InstructionResize:
		return m.Resize(path, in.Width, in.Height)
	case InstructionCropResize:
		return m.CropResize(path, in.Width, in.Height)
	case InstructionConvert:
		return m.Convert(path, in.Format)
	case InstructionCallback:
		if in.Callback == nil {
			return fmt.Errorf("%w: nil callback", ErrInvalidInstruction)
		}
		return in.Callback(m, path)
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidInstruction, in.Kind)
	}
}

// Version is a named derived variant of the primary file.
type Version struct {
	Name        string
	Instruction Instruction
}

var (
	versionName = regexp.MustCompile(`^[A-Za-z0-9_+\-]+$`)

	reservedVersionNames = map[string]struct{}{
		"url": {}, "path": {}, "public_path": {}, "temp": {}, "filename": {},
		"basename": {}, "extension": {}, "size": {}, "dir": {}, "versions": {},
		"store_dir": {}, "tmp_dir": {}, "original_filename": {}, "content_type": {},
	}
)

// ValidateVersions rejects duplicate, reserved or unsafe version names.
func ValidateVersions(versions []Version) error {
	seen := make(map[string]struct{}, len(versions))
	for _, v := range versions {
		if !versionName.MatchString(v.Name) {
			return fmt.Errorf("%w: %q", ErrIllegalVersion, v.Name)
		}
		key := strings.ToLower(v.Name)
		if _, ok := reservedVersionNames[key]; ok {
			return fmt.Errorf("%w: %q is reserved", ErrIllegalVersion, v.Name)
		}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: %q declared twice", ErrIllegalVersion, v.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}
