// Package ratelimit bounds the outbound request rate to the matcher service
// with a fixed-window quota. Blocking happens only inside Window.Wait, which is
// the sole suspension point of an enrichment run.
package ratelimit
