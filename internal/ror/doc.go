// Package ror provides the organization-identifier matcher client and the
// matching core built on top of it.
//
// Client issues affiliation searches and returns typed responses. Matcher
// wraps a Searcher with the optional rate limiter and result cache, and
// reduces each response to a single MatchResult: the first candidate wins,
// absent fields fall back to the "No Match" sentinel one by one, and every
// failure collapses to the all-sentinel result.
package ror
