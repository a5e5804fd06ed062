// Package errors provides structured, actionable error messages for wwwbuild.
//
// Every failure the pipeline can report is registered under a code
// (e.g. "E121") with a category, a short message and a longer detail.
// Callers attach the concrete cause, an optional source location and a
// suggestion:
//
//	err := errors.New("E121").
//	    WithLocation("src/www/assets/js/main.js", 12, 5).
//	    WithDetail(`Expected ";" but found "}"`)
//
//	errors.Fprint(os.Stderr, err)
//	// error[E121]: Script bundling failed
//	//   --> src/www/assets/js/main.js:12:5
//	//    |
//	// 10 | function init() {
//	// 11 |     const el = document.body
//	// 12 |     el.x(}
//	//    |     ^
//	// 13 | }
//	// 14 | init();
//	//    |
//	//    = Expected ";" but found "}"
//
// FormatCompact and Summary give the same information on one line for
// log records and the browser error overlay.
//
// # Error Categories
//
//   - gate: cleaning the output directory
//   - compile: stylesheet and script compilation
//   - io: reading sources and writing artifacts
//   - config: loading and validating wwwbuild.json
//   - cli: unknown tasks and bad invocations
//   - serve: the preview server
//   - publish: uploading the output tree
package errors
