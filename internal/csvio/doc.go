// Package csvio reads organization exports and enriched files, and writes
// enriched rows.
//
// Input files may be comma, semicolon, or tab separated; the separator is
// detected from the first kilobyte. A leading UTF-8 byte-order mark is
// dropped and header names are trimmed before required columns are checked.
package csvio
