// Package marketdata is the shared quote synchronization core.
//
// A Service deduplicates bulk fetches against the upstream provider, serves
// a cached snapshot while it is fresh, falls back to the last persisted
// snapshot when the provider is down, and fans the current snapshot out to
// subscribers from a single poll loop that runs only while someone is
// listening.
package marketdata
