package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/radiowazoo/wwwbuild/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "wwwbuild.json"

	// DefaultSource is the default source root.
	DefaultSource = "src/www"

	// DefaultOutput is the default build output directory.
	DefaultOutput = "data/www"

	// DefaultEntry is the default script entry point, relative to the source root.
	DefaultEntry = "assets/js/main.js"

	// DefaultOutfile is the default bundle path, relative to the output root.
	DefaultOutfile = "assets/js/main.min.js"

	// DefaultFormat is the default bundle format.
	DefaultFormat = "iife"

	// DefaultTarget is the default JavaScript language baseline.
	DefaultTarget = "es2015"

	// DefaultSassBinary is the Dart Sass executable looked up on PATH.
	DefaultSassBinary = "sass"

	// DefaultHost is the default preview server host.
	DefaultHost = "localhost"

	// DefaultPort is the default preview server port.
	DefaultPort = 8080

	// DefaultRegion is the default publish region.
	DefaultRegion = "us-east-1"
)

// ConfigFileNames lists the accepted config file names in lookup order.
var ConfigFileNames = []string{ConfigFileName, "wwwbuild.yaml", "wwwbuild.yml"}

// TaskNames lists the tasks that may run in the parallel phase.
var TaskNames = []string{"scss", "js", "html", "images"}

// TaskAliases maps alternative task names to their TaskNames entry.
var TaskAliases = map[string]string{
	"stylesheet": "scss",
	"css":        "scss",
	"script":     "js",
	"markup":     "html",
	"assets":     "images",
}

// CanonicalTask resolves a task name or alias to its TaskNames entry.
func CanonicalTask(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := TaskAliases[name]; ok {
		name = alias
	}
	return name, slices.Contains(TaskNames, name)
}

// DefaultImageExtensions are the asset extensions copied verbatim.
var DefaultImageExtensions = []string{".svg", ".png", ".jpg", ".jpeg", ".gif", ".ico", ".webp"}

var targetPattern = regexp.MustCompile(`^(es5|es20(1[5-9]|2[0-2])|esnext)$`)

// Config represents the complete wwwbuild.json configuration.
type Config struct {
	// Source is the source root containing stylesheets, scripts, markup and images.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// Output is the output root. It is removed and recreated on every build.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`

	// Tasks selects the tasks of the parallel phase.
	Tasks []string `json:"tasks,omitempty" yaml:"tasks,omitempty"`

	// SCSS configures the stylesheet task.
	SCSS StylesheetConfig `json:"scss,omitempty" yaml:"scss,omitempty"`

	// JS configures the script task.
	JS ScriptConfig `json:"js,omitempty" yaml:"js,omitempty"`

	// HTML configures the markup task.
	HTML MarkupConfig `json:"html,omitempty" yaml:"html,omitempty"`

	// Images configures the asset task.
	Images AssetConfig `json:"images,omitempty" yaml:"images,omitempty"`

	// Serve configures the preview server.
	Serve ServeConfig `json:"serve,omitempty" yaml:"serve,omitempty"`

	// Publish configures uploads of the output tree.
	Publish PublishConfig `json:"publish,omitempty" yaml:"publish,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string

	// root is the project directory when no config file backs the config.
	root string
}

// PathSpec pairs source globs with a destination directory.
type PathSpec struct {
	// Src are glob patterns relative to the source root. "**" matches
	// any number of directories.
	Src []string `json:"src,omitempty" yaml:"src,omitempty"`

	// Dest is the destination directory relative to the output root.
	Dest string `json:"dest,omitempty" yaml:"dest,omitempty"`
}

// StylesheetConfig contains stylesheet task settings.
type StylesheetConfig struct {
	PathSpec `yaml:",inline"`

	// IncludePaths are extra load paths for @use and @import, relative to
	// the project directory.
	IncludePaths []string `json:"includePaths,omitempty" yaml:"includePaths,omitempty"`

	// SassBinary is the Dart Sass executable.
	SassBinary string `json:"sassBinary,omitempty" yaml:"sassBinary,omitempty"`
}

// ScriptConfig contains script task settings.
type ScriptConfig struct {
	// Entry is the entry point relative to the source root.
	Entry string `json:"entry,omitempty" yaml:"entry,omitempty"`

	// Outfile is the bundle path relative to the output root.
	Outfile string `json:"outfile,omitempty" yaml:"outfile,omitempty"`

	// Format is the output format: iife, esm or cjs.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// Target is the language baseline (es5, es2015 ... es2022, esnext).
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	// SourceMap writes a linked source map next to the bundle.
	SourceMap bool `json:"sourceMap,omitempty" yaml:"sourceMap,omitempty"`
}

// MarkupConfig contains markup task settings.
type MarkupConfig struct {
	PathSpec `yaml:",inline"`
}

// AssetConfig contains asset task settings.
type AssetConfig struct {
	// Extensions are the file extensions copied verbatim, matched
	// case-insensitively.
	Extensions []string `json:"extensions,omitempty" yaml:"extensions,omitempty"`

	// Dest is the destination directory relative to the output root.
	Dest string `json:"dest,omitempty" yaml:"dest,omitempty"`
}

// ServeConfig contains preview server settings.
type ServeConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// HotReload injects the live reload client and rebuilds on change.
	HotReload bool `json:"hotReload,omitempty" yaml:"hotReload,omitempty"`
}

// PublishConfig contains upload settings.
type PublishConfig struct {
	// Bucket is the destination bucket.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`

	// Prefix is prepended to every object key.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Region is the bucket region.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Endpoint overrides the service endpoint for S3-compatible stores.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// PathStyle forces path-style addressing.
	PathStyle bool `json:"pathStyle,omitempty" yaml:"pathStyle,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Source: DefaultSource,
		Output: DefaultOutput,
		Tasks:  slices.Clone(TaskNames),
		SCSS: StylesheetConfig{
			PathSpec:     PathSpec{Src: []string{"**/*.scss", "**/*.css"}},
			IncludePaths: []string{"node_modules"},
			SassBinary:   DefaultSassBinary,
		},
		JS: ScriptConfig{
			Entry:   DefaultEntry,
			Outfile: DefaultOutfile,
			Format:  DefaultFormat,
			Target:  DefaultTarget,
		},
		HTML: MarkupConfig{
			PathSpec: PathSpec{Src: []string{"**/*.html"}},
		},
		Images: AssetConfig{
			Extensions: slices.Clone(DefaultImageExtensions),
		},
		Serve: ServeConfig{
			Host:      DefaultHost,
			Port:      DefaultPort,
			HotReload: true,
		},
		Publish: PublishConfig{
			Region: DefaultRegion,
		},
	}
}

// NewAt creates a default Config rooted at dir, for projects without a
// config file.
func NewAt(dir string) *Config {
	cfg := New()
	cfg.root = dir
	return cfg
}

// Load reads configuration from the specified directory.
// It looks for the first of ConfigFileNames present in the directory.
func Load(dir string) (*Config, error) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E151").
		WithDetail("No " + ConfigFileName + " found in " + dir)
}

// LoadFile reads configuration from the specified file path. Files ending
// in .yaml or .yml are decoded as YAML, everything else as JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E151").
				WithDetail("No config file at " + path)
		}
		return nil, errors.New("E152").Wrap(err)
	}

	cfg := New()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("E152").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error())
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.New("E152").Wrap(err)
	}
	cfg.configPath = abs
	cfg.applyDefaults()

	return cfg, nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the project directory: the directory containing the config
// file, or the root given to NewAt.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return c.root
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Source == "" {
		c.Source = DefaultSource
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if len(c.Tasks) == 0 {
		c.Tasks = slices.Clone(TaskNames)
	}
	for i, t := range c.Tasks {
		c.Tasks[i], _ = CanonicalTask(t)
	}

	if len(c.SCSS.Src) == 0 {
		c.SCSS.Src = []string{"**/*.scss", "**/*.css"}
	}
	if c.SCSS.SassBinary == "" {
		c.SCSS.SassBinary = DefaultSassBinary
	}

	if c.JS.Entry == "" {
		c.JS.Entry = DefaultEntry
	}
	if c.JS.Outfile == "" {
		c.JS.Outfile = DefaultOutfile
	}
	c.JS.Format = strings.ToLower(c.JS.Format)
	if c.JS.Format == "" {
		c.JS.Format = DefaultFormat
	}
	c.JS.Target = strings.ToLower(c.JS.Target)
	if c.JS.Target == "" {
		c.JS.Target = DefaultTarget
	}

	if len(c.HTML.Src) == 0 {
		c.HTML.Src = []string{"**/*.html"}
	}

	if len(c.Images.Extensions) == 0 {
		c.Images.Extensions = slices.Clone(DefaultImageExtensions)
	}
	for i, ext := range c.Images.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Images.Extensions[i] = ext
	}

	if c.Serve.Host == "" {
		c.Serve.Host = DefaultHost
	}
	if c.Serve.Port == 0 {
		c.Serve.Port = DefaultPort
	}

	if c.Publish.Region == "" {
		c.Publish.Region = DefaultRegion
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	for _, t := range c.Tasks {
		if _, ok := CanonicalTask(t); !ok {
			return errors.New("E153").
				WithDetail("Unknown task " + strconv.Quote(t) + " in \"tasks\"").
				WithSuggestion("Valid tasks are: " + strings.Join(TaskNames, ", "))
		}
	}

	switch c.JS.Format {
	case "iife", "esm", "cjs":
	default:
		return errors.New("E153").
			WithDetail("js.format must be one of iife, esm, cjs; got " + strconv.Quote(c.JS.Format))
	}
	if !targetPattern.MatchString(c.JS.Target) {
		return errors.New("E153").
			WithDetail("js.target must be es5, es2015 ... es2022 or esnext; got " + strconv.Quote(c.JS.Target))
	}

	src, out := c.SourcePath(), c.OutputPath()
	if src == out || isWithin(src, out) {
		return errors.New("E153").
			WithDetail("output " + strconv.Quote(out) + " must not contain the source root " + strconv.Quote(src))
	}

	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return errors.New("E153").
			WithDetail("serve.port must be between 0 and 65535")
	}
	return nil
}

// HasTask reports whether the named task, or the task an alias names,
// runs in the parallel phase.
func (c *Config) HasTask(name string) bool {
	name, ok := CanonicalTask(name)
	if !ok {
		return false
	}
	return slices.ContainsFunc(c.Tasks, func(t string) bool {
		canonical, _ := CanonicalTask(t)
		return canonical == name
	})
}

// SourcePath returns the absolute path to the source root.
func (c *Config) SourcePath() string {
	return c.resolve(c.Source)
}

// OutputPath returns the absolute path to the output root.
func (c *Config) OutputPath() string {
	return c.resolve(c.Output)
}

// EntryPath returns the absolute path to the script entry point.
func (c *Config) EntryPath() string {
	if filepath.IsAbs(c.JS.Entry) {
		return c.JS.Entry
	}
	return filepath.Join(c.SourcePath(), c.JS.Entry)
}

// OutfilePath returns the absolute path to the script bundle.
func (c *Config) OutfilePath() string {
	if filepath.IsAbs(c.JS.Outfile) {
		return c.JS.Outfile
	}
	return filepath.Join(c.OutputPath(), c.JS.Outfile)
}

// IncludePaths returns the stylesheet load paths as absolute paths.
func (c *Config) IncludePaths() []string {
	paths := make([]string, 0, len(c.SCSS.IncludePaths))
	for _, p := range c.SCSS.IncludePaths {
		paths = append(paths, c.resolve(p))
	}
	return paths
}

// DestPath returns the absolute destination directory for a task-relative dest.
func (c *Config) DestPath(dest string) string {
	if filepath.IsAbs(dest) {
		return dest
	}
	return filepath.Join(c.OutputPath(), dest)
}

// ServeAddress returns the address string for the preview server.
func (c *Config) ServeAddress() string {
	return c.Serve.Host + ":" + strconv.Itoa(c.Serve.Port)
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	dir := c.Dir()
	if dir == "" {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	}
	return filepath.Join(dir, path)
}

// isWithin reports whether path lies inside dir.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range ConfigFileNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing a config file, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E151").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory
// or its closest ancestor holding a config file.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
