package common

import (
	log "github.com/sirupsen/logrus"
)

// DType names the numeric precision of a GEMM operand or result. The names
// match the ones the tuner accepts on the command line.
type DType string

const (
	F32  DType = "f32"
	F16  DType = "f16"
	BF16 DType = "bf16"
	F8   DType = "f8" // E4M3
)

// ParseDType maps a command-line dtype name to a DType. Unknown names fall
// back to f8 with a warning instead of failing, so a typo degrades to the
// default tuning precision.
func ParseDType(name string) DType {
	switch name {
	case "f32":
		return F32
	case "f16":
		return F16
	case "bf16":
		return BF16
	case "f8":
		return F8
	default:
		log.Warnf("Invalid dtype %q, using default dtype f8", name)
		return F8
	}
}

func (d DType) SizeBytes() int {
	switch d {
	case F32:
		return 4
	case F16, BF16:
		return 2
	default:
		return 1
	}
}

func (d DType) String() string {
	return string(d)
}
