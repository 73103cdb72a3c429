// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// ErrCorruption is a marker to indicate that data in a block is corrupted.
var ErrCorruption = errors.New("prefixtree: corruption")

// ErrContractViolation is a marker to indicate that a caller broke the API
// contract of an encoder, searcher or pool: out-of-order input, use after
// flush, reading an unpositioned searcher, exceeding a pool cap.
var ErrContractViolation = errors.New("prefixtree: contract violation")

// ErrConfiguration is a marker to indicate an unsupported encoding kind,
// comparer or option.
var ErrConfiguration = errors.New("prefixtree: unsupported configuration")

// MarkCorruptionError marks given error as a corruption error.
func MarkCorruptionError(err error) error {
	if errors.Is(err, ErrCorruption) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}

// IsCorruptionError returns true if the given error indicates corruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// CorruptionErrorf formats according to a format specifier and returns
// the string as an error value that is marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// ContractViolationf returns an assertion failure marked with
// ErrContractViolation.
func ContractViolationf(format string, args ...interface{}) error {
	return errors.Mark(errors.AssertionFailedf(format, args...), ErrContractViolation)
}

// ConfigurationErrorf returns an error marked with ErrConfiguration.
func ConfigurationErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}
