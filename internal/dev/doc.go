// Package dev implements the preview server behind "wwwbuild serve".
//
// The server serves the output tree over HTTP, watches the source tree
// and re-runs only the tasks a change affects:
//
//   - Watcher: fsnotify events, debounced per path
//   - Server: chi router over the output tree, rebuild loop
//   - ReloadServer: tells browsers to reload over WebSocket
//
// # Live Reload Protocol
//
// HTML responses get a small client that connects to /_wwwbuild/reload.
// Messages are JSON-encoded:
//
//	{"type": "reload"}                // full page reload
//	{"type": "css", "file": "..."}    // refetch stylesheets only
//	{"type": "error", "error": "..."} // show the build error overlay
//	{"type": "clear"}                 // hide the overlay
package dev
