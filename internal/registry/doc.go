// Package registry is a small client for the research-information registry's
// external-organization endpoints: paged listing, single-record fetch,
// identifier updates, and merge requests. Every request carries the api-key
// header.
package registry
