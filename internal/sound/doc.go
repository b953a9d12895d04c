// Package sound plays catalog sounds through the operating system's audio
// command line tools (afplay on macOS, paplay, aplay or ffplay on Linux,
// PowerShell on Windows).
//
// Media is fetched with the soundboard's HTTP client, so it is served from
// the offline cache when available, and spooled to disk because the players
// only accept files.
package sound
