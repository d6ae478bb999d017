// Package records defines the organization, match, and enriched-row types
// shared by every rorsync command, together with the "No Match" sentinel and
// the enriched CSV column contract.
package records
