// Package pipeline runs per-file transformation chains.
//
// A Pipeline selects files under a source directory, then for each file
// reads it, applies its stages in order and writes the result under a
// destination directory at the same relative path (or the path a stage
// renamed it to). Stages are plain functions over a *File:
//
//	p := &pipeline.Pipeline{
//	    Name:    "html",
//	    SrcDir:  "/project/src/www",
//	    DestDir: "/project/data/www",
//	    Stages: []pipeline.Stage{
//	        pipeline.Replace(`.css"`, `.min.css"`),
//	    },
//	}
//	files, _ := pipeline.Match(p.SrcDir, []string{"**/*.html"})
//	report, err := p.Run(files)
//
// Read and write failures always abort the run. A failing stage aborts it
// too unless OnError absorbs the failure, in which case the file is skipped.
package pipeline
