// Package build runs the static-asset build for the device web UI.
//
// This package handles:
//   - Cleaning the output directory (the gate)
//   - SCSS compilation and CSS minification
//   - JavaScript bundling and minification
//   - HTML copying with references rewritten to the minified outputs
//   - Image copying
//
// # Task Graph
//
// A build is a fixed two-phase graph. The gate runs first and must finish
// before anything else starts; the remaining tasks then run concurrently
// and the build completes when all of them have:
//
//	clean ──┬── scss
//	        ├── js
//	        ├── html
//	        └── images
//
// Tasks of the parallel phase write disjoint parts of the output tree and
// never read each other's output. A failing task does not cancel the
// others; the build reports the first failure once all have finished.
//
// # Usage
//
//	builder := build.New(cfg, build.Options{Logger: logger})
//	defer builder.Close()
//
//	result, err := builder.Build(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Built in %s\n", result.Duration)
//
// Single tasks run through Run:
//
//	_, err := builder.Run(ctx, build.TaskScript)
//
// # Output Structure
//
//	data/www/
//	├── index.html              # references rewritten to *.min.*
//	└── assets/
//	    ├── css/main.min.css    # from src/www/assets/css/main.scss
//	    ├── js/main.min.js      # bundle of src/www/assets/js/main.js
//	    └── img/logo.svg        # copied verbatim
package build
