// Package config provides configuration parsing for wwwbuild projects.
//
// The configuration is stored in wwwbuild.json (or wwwbuild.yaml) at the
// project root. Every field is optional; missing values fall back to the
// conventional layout where sources live under src/www and the firmware
// serves the build output from data/www.
//
// # Configuration File Structure
//
//	{
//	  "source": "src/www",
//	  "output": "data/www",
//	  "tasks": ["scss", "js", "html", "images"],
//	  "scss": {
//	    "src": ["**/*.scss", "**/*.css"],
//	    "includePaths": ["node_modules"]
//	  },
//	  "js": {
//	    "entry": "assets/js/main.js",
//	    "outfile": "assets/js/main.min.js",
//	    "format": "iife",
//	    "target": "es2015"
//	  },
//	  "html": {"src": ["**/*.html"]},
//	  "images": {"extensions": [".svg", ".png", ".jpg"]},
//	  "serve": {"port": 8080},
//	  "publish": {"bucket": "my-device-ui", "prefix": "www/"}
//	}
//
// Source globs are relative to "source"; "dest" directories and the
// script outfile are relative to "output".
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Output:", cfg.OutputPath())
package config
