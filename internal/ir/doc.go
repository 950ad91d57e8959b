// Package ir provides the value and record types shared by every gridsync
// package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Cells are scalars (null, string, int, float, bool); arrays and objects
//     appear only in fetched records and are flattened before display
//   - Identifiers are int64; a float is only an identifier when integral
//   - All JSON tags use snake_case and match the store's wire names
//   - Content hashes use RFC 8785 canonical JSON with domain separation
package ir
