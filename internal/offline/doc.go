// Package offline implements the offline asset cache.
//
// A Worker is an http.RoundTripper that serves GET requests from the active
// cache bucket and falls back to the network, storing successful same-origin
// responses as it goes. Entries are never revalidated: once a URL is cached
// it is served from the bucket until a new bucket version activates.
//
// The lifecycle mirrors a browser service worker:
//
//   - Install opens the bucket for the worker's version, stores every shell
//     asset (all or nothing), then stores every audio file and vector icon
//     the catalog references (best effort).
//   - Activate deletes every bucket that is not the current version and
//     makes the current bucket the one RoundTrip serves from.
//   - Start runs Install and Activate when the store's active bucket is not
//     the worker's version. If Install fails the previous bucket, if any,
//     keeps serving.
package offline
