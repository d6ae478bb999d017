// Package matchcache stores matcher answers in a local SQLite database so
// repeated runs over the same registry do not spend request quota on names
// that were already resolved.
//
// # Keys
//
// Names are keyed after collapsing whitespace, Unicode case folding, and NFC
// composition, so "Aarhus  Universitet" and "AARHUS UNIVERSITET" share an
// entry.
//
// # Usage
//
// The cache is disabled by default. Enable it in config.toml:
//
//	[match_cache]
//	enabled = true
//	path = "~/.cache/rorsync/matches.db"
//
// Only answers the matcher actually returned are stored; transport failures
// are retried on the next run.
//
//	rorsync cache list     # List cached names
//	rorsync cache clear    # Remove all entries
package matchcache
