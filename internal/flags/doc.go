// Package flags caches externally published flag sets.
//
// A flag source is any URL returning a JSON object of flags, either bare or
// wrapped as {"flags": {...}}. Readers always answer immediately from the
// cache; refreshes run in the background and replace a URL's entry in one
// step once the fetch resolves. Entries are never invalidated, so a stale
// value is served until a newer fetch succeeds.
package flags
