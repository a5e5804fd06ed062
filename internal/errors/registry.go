package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Gate Errors (E101-E109)
	// ============================================

	"E101": {
		Category:   CategoryGate,
		Message:    "Failed to clean output directory",
		Suggestion: "Check that the output directory is writable and not held open by another process",
	},
	"E102": {
		Category:   CategoryGate,
		Message:    "Refusing to clean output directory",
		Suggestion: "Point \"output\" at a directory outside the source tree",
	},

	// ============================================
	// Stylesheet Errors (E111-E119)
	// ============================================

	"E111": {
		Category: CategoryIO,
		Message:  "Stylesheet I/O failed",
	},
	"E112": {
		Category:   CategoryCompile,
		Message:    "Sass compiler unavailable",
		Suggestion: "Install Dart Sass (https://sass-lang.com/install) or set \"scss.sassBinary\"",
	},
	"E113": {
		Category: CategoryCompile,
		Message:  "Stylesheet compilation failed",
	},

	// ============================================
	// Script Errors (E121-E129)
	// ============================================

	"E121": {
		Category: CategoryCompile,
		Message:  "Script bundling failed",
	},
	"E122": {
		Category: CategoryIO,
		Message:  "Script output could not be written",
	},

	// ============================================
	// Markup and Asset Errors (E131-E149)
	// ============================================

	"E131": {
		Category: CategoryIO,
		Message:  "Markup processing failed",
	},
	"E141": {
		Category: CategoryIO,
		Message:  "Asset copy failed",
	},

	// ============================================
	// Config Errors (E151-E159)
	// ============================================

	"E151": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Suggestion: "Create wwwbuild.json at the project root or pass --config",
	},
	"E152": {
		Category:   CategoryConfig,
		Message:    "Invalid config file",
		Suggestion: "Check that the file is valid JSON or YAML",
	},
	"E153": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},

	// ============================================
	// CLI Errors (E161-E169)
	// ============================================

	"E161": {
		Category:   CategoryCLI,
		Message:    "Unknown task",
		Suggestion: "Valid tasks are: clean, scss, js, html, images, build",
	},
	"E162": {
		Category:   CategoryCLI,
		Message:    "Invalid command line",
		Suggestion: "Run 'wwwbuild help' for usage",
	},
	"E163": {
		Category: CategoryCLI,
		Message:  "Could not write metrics file",
	},

	// ============================================
	// Serve Errors (E171-E179)
	// ============================================

	"E171": {
		Category: CategoryServe,
		Message:  "Preview server failed",
	},
	"E172": {
		Category: CategoryServe,
		Message:  "File watcher failed",
	},

	// ============================================
	// Publish Errors (E181-E189)
	// ============================================

	"E181": {
		Category:   CategoryPublish,
		Message:    "Publish target not configured",
		Suggestion: "Set \"publish.bucket\" in wwwbuild.json or pass --bucket",
	},
	"E182": {
		Category: CategoryPublish,
		Message:  "Upload failed",
	},
}

// Lookup returns the template registered under code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
