// Package textutil provides byte-level text helpers for source files:
// binary detection, line counting and line splitting.
package textutil

import (
	"bytes"
)

// BinarySniffLength is the maximum number of bytes scanned for null-byte
// detection. Matches the heuristic used by Git and most editors.
const BinarySniffLength = 8000

// IsBinary returns true if data contains a null byte within the first
// BinarySniffLength bytes. Empty data is not binary.
func IsBinary(data []byte) bool {
	sniff := data
	if len(sniff) > BinarySniffLength {
		sniff = sniff[:BinarySniffLength]
	}

	return bytes.IndexByte(sniff, 0) >= 0
}

// CountLines returns the number of newline-delimited lines in data.
// A non-empty buffer without a trailing newline counts the last partial line.
// Returns 0 for empty data.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	lines := bytes.Count(data, []byte{'\n'})

	if data[len(data)-1] != '\n' {
		lines++
	}

	return lines
}

// SplitLines splits data into CountLines(data) lines without their
// terminators. A trailing "\r" is kept.
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}

	data = bytes.TrimSuffix(data, []byte{'\n'})
	parts := bytes.Split(data, []byte{'\n'})

	lines := make([]string, len(parts))
	for i, p := range parts {
		lines[i] = string(p)
	}

	return lines
}
