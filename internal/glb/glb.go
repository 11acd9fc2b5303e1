// Package glb inspects the fixed header of binary glTF containers.
//
// Only the 12-byte header is examined, so callers can validate a model by
// range-reading its first bytes instead of downloading the whole object.
package glb

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the length of the GLB file header.
	HeaderSize = 12

	// Magic is the ASCII string "glTF" read as a little-endian uint32.
	Magic uint32 = 0x46546C67

	// SupportedVersion is the only container version accepted.
	SupportedVersion uint32 = 2

	minTolerance     = 100
	tolerancePercent = 5
)

// Result describes the outcome of a header validation.
type Result struct {
	Valid          bool
	Version        uint32
	DeclaredLength uint32
	Err            error
}

// Validate checks header against the GLB container layout. fileSize is the
// authoritative object size as reported by the store; it is deliberately not
// derived from len(header), which is usually a truncated range read.
func Validate(header []byte, fileSize int64) Result {
	if len(header) < HeaderSize {
		return Result{Err: fmt.Errorf("file too small to be a valid GLB container: %d bytes, need at least %d", len(header), HeaderSize)}
	}

	magic := binary.LittleEndian.Uint32(header[0:4])
	if magic != Magic {
		return Result{Err: fmt.Errorf("invalid GLB magic 0x%08x: file is not a binary glTF container", magic)}
	}

	version := binary.LittleEndian.Uint32(header[4:8])
	if version != SupportedVersion {
		return Result{Err: fmt.Errorf("unsupported GLB version %d (expected %d)", version, SupportedVersion)}
	}

	declared := binary.LittleEndian.Uint32(header[8:12])
	if !WithinTolerance(int64(declared), fileSize) {
		return Result{
			Version:        version,
			DeclaredLength: declared,
			Err:            fmt.Errorf("GLB size mismatch: header declares %d bytes but file is %d bytes", declared, fileSize),
		}
	}

	return Result{Valid: true, Version: version, DeclaredLength: declared}
}

// Tolerance returns the accepted absolute deviation for a file of size bytes:
// max(5% of size, 100 bytes).
func Tolerance(size int64) int64 {
	t := size * tolerancePercent / 100
	if t < minTolerance {
		return minTolerance
	}
	return t
}

// WithinTolerance reports whether got deviates from the authoritative size by
// no more than Tolerance(size).
func WithinTolerance(got, size int64) bool {
	d := got - size
	if d < 0 {
		d = -d
	}
	return d <= Tolerance(size)
}

// Header builds a GLB header declaring the given version and total length.
func Header(version, totalLength uint32) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], Magic)
	binary.LittleEndian.PutUint32(b[4:8], version)
	binary.LittleEndian.PutUint32(b[8:12], totalLength)
	return b
}
