package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ErrUnknownFramework is returned when a framework id is not configured.
var ErrUnknownFramework = errors.New("unknown framework")

// StartDateLayout is the layout of Framework.StartDate.
const StartDateLayout = "2006-01-02"

// Config holds all configuration options for coremetrics.
type Config struct {
	// Frameworks maps a framework id (drupal, typo3, ...) to its settings.
	Frameworks map[string]Framework `koanf:"frameworks" toml:"frameworks"`

	Paths    PathsConfig    `koanf:"paths" toml:"paths"`
	Git      GitConfig      `koanf:"git" toml:"git"`
	Analyzer AnalyzerConfig `koanf:"analyzer" toml:"analyzer"`
	History  HistoryConfig  `koanf:"history" toml:"history"`
	Cache    CacheConfig    `koanf:"cache" toml:"cache"`
}

// Framework describes one analyzed code base. A pipeline run is
// parameterized by exactly one Framework value.
type Framework struct {
	ID         string   `koanf:"-" toml:"-"`
	Name       string   `koanf:"name" toml:"name"`
	RepoURL    string   `koanf:"repo_url" toml:"repo_url"`
	StartDate  string   `koanf:"start_date" toml:"start_date"`
	Analyzer   string   `koanf:"analyzer" toml:"analyzer"`
	CoreSubdir string   `koanf:"core_subdir" toml:"core_subdir"`
	Extensions []string `koanf:"extensions" toml:"extensions"`
}

// PathsConfig locates mirrors, scratch space, reports and analyzer scripts.
// Relative entries are resolved against ProjectDir.
type PathsConfig struct {
	ProjectDir string `koanf:"project_dir" toml:"project_dir"`
	OutputDir  string `koanf:"output_dir" toml:"output_dir"`
	DataDir    string `koanf:"data_dir" toml:"data_dir"`
	ScriptsDir string `koanf:"scripts_dir" toml:"scripts_dir"`
}

// GitConfig controls the git subprocesses.
type GitConfig struct {
	Binary                string `koanf:"binary" toml:"binary"`
	CommandTimeoutMinutes int    `koanf:"command_timeout_minutes" toml:"command_timeout_minutes"`
	ArchiveTimeoutMinutes int    `koanf:"archive_timeout_minutes" toml:"archive_timeout_minutes"`
}

// AnalyzerConfig controls how the external analyzer is invoked.
type AnalyzerConfig struct {
	Binary              string `koanf:"binary" toml:"binary"`
	DeltaMemoryLimit    string `koanf:"delta_memory_limit" toml:"delta_memory_limit"`
	FullMemoryLimit     string `koanf:"full_memory_limit" toml:"full_memory_limit"`
	DeltaTimeoutSeconds int    `koanf:"delta_timeout_seconds" toml:"delta_timeout_seconds"`
	FullTimeoutSeconds  int    `koanf:"full_timeout_seconds" toml:"full_timeout_seconds"`
}

// HistoryConfig controls sampling of the commit history.
type HistoryConfig struct {
	IntervalMonths int `koanf:"interval_months" toml:"interval_months"`
	RecentDays     int `koanf:"recent_days" toml:"recent_days"`
	TargetCommits  int `koanf:"target_commits" toml:"target_commits"`
}

// CacheConfig controls the snapshot measurement cache.
type CacheConfig struct {
	Enabled  bool   `koanf:"enabled" toml:"enabled"`
	Dir      string `koanf:"dir" toml:"dir"`
	TTLHours int    `koanf:"ttl_hours" toml:"ttl_hours"`
}

// DefaultConfig returns a config with the stock frameworks.
func DefaultConfig() *Config {
	return &Config{
		Frameworks: map[string]Framework{
			"drupal": {
				Name:       "Drupal",
				RepoURL:    "https://git.drupalcode.org/project/drupal.git",
				StartDate:  "2011-01-01", // Drupal 7 release
				Analyzer:   "drupalisms.php",
				CoreSubdir: "core",
				Extensions: []string{".php", ".module", ".inc", ".install", ".theme", ".profile", ".engine"},
			},
			"typo3": {
				Name:       "TYPO3",
				RepoURL:    "https://github.com/TYPO3/typo3.git",
				StartDate:  "2016-01-01", // v8 era
				Analyzer:   "typo3isms.php",
				CoreSubdir: "typo3/sysext",
				Extensions: []string{".php"},
			},
		},
		Paths: PathsConfig{
			ProjectDir: ".",
			OutputDir:  "output",
			DataDir:    "data",
			ScriptsDir: "scripts",
		},
		Git: GitConfig{
			Binary:                "git",
			CommandTimeoutMinutes: 10,
			ArchiveTimeoutMinutes: 5,
		},
		Analyzer: AnalyzerConfig{
			Binary:              "php",
			DeltaMemoryLimit:    "512M",
			FullMemoryLimit:     "2G",
			DeltaTimeoutSeconds: 60,
			FullTimeoutSeconds:  600,
		},
		History: HistoryConfig{
			IntervalMonths: 6,
			RecentDays:     365,
			TargetCommits:  100,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Dir:      "output/cache",
			TTLHours: 24 * 30,
		},
	}
}

// Load loads configuration from a file, layered over DefaultConfig.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	defaults := DefaultConfig().Frameworks
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	for id, fw := range cfg.Frameworks {
		if base, ok := defaults[id]; ok {
			cfg.Frameworks[id] = fw.withDefaults(base)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadResult is a loaded config and the file it came from.
type LoadResult struct {
	Config *Config
	Source string // empty when defaults were used
}

// configNames are searched in order inside each search directory.
var configNames = []string{
	"coremetrics.toml",
	"coremetrics.yaml",
	"coremetrics.yml",
	"coremetrics.json",
	".coremetrics.toml",
	".coremetrics.yaml",
	".coremetrics.yml",
	".coremetrics.json",
}

// LoadOrDefault loads path when given, otherwise searches the standard
// locations and falls back to defaults.
func LoadOrDefault(path string) (*LoadResult, error) {
	if path != "" {
		cfg, err := Load(path)
		if err != nil {
			return nil, err
		}
		return &LoadResult{Config: cfg, Source: path}, nil
	}

	for _, dir := range []string{".", ".coremetrics"} {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			cfg, err := Load(candidate)
			if err != nil {
				return nil, err
			}
			return &LoadResult{Config: cfg, Source: candidate}, nil
		}
	}

	return &LoadResult{Config: DefaultConfig()}, nil
}

// Validate checks that the config can drive a pipeline run.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Frameworks) == 0 {
		errs = append(errs, errors.New("no frameworks configured"))
	}
	for _, id := range c.FrameworkIDs() {
		fw, _ := c.Framework(id)
		if err := fw.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.History.IntervalMonths <= 0 {
		errs = append(errs, fmt.Errorf("history.interval_months must be positive (got %d)", c.History.IntervalMonths))
	}
	if c.History.RecentDays <= 0 {
		errs = append(errs, fmt.Errorf("history.recent_days must be positive (got %d)", c.History.RecentDays))
	}
	if c.History.TargetCommits <= 0 {
		errs = append(errs, fmt.Errorf("history.target_commits must be positive (got %d)", c.History.TargetCommits))
	}
	if c.Git.CommandTimeoutMinutes <= 0 || c.Git.ArchiveTimeoutMinutes <= 0 {
		errs = append(errs, errors.New("git timeouts must be positive"))
	}
	if c.Analyzer.DeltaTimeoutSeconds <= 0 || c.Analyzer.FullTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("analyzer timeouts must be positive"))
	}
	for _, limit := range []string{c.Analyzer.DeltaMemoryLimit, c.Analyzer.FullMemoryLimit} {
		if err := validMemoryLimit(limit); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// validMemoryLimit accepts an empty limit, -1 (unlimited), or a size such
// as 512M or 2G.
func validMemoryLimit(limit string) error {
	if limit == "" || limit == "-1" {
		return nil
	}
	if _, err := humanize.ParseBytes(limit); err != nil {
		return fmt.Errorf("analyzer memory limit %q: %w", limit, err)
	}
	return nil
}

// FrameworkIDs returns the configured framework ids in sorted order.
func (c *Config) FrameworkIDs() []string {
	ids := make([]string, 0, len(c.Frameworks))
	for id := range c.Frameworks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Framework returns the settings for id with its ID field populated.
func (c *Config) Framework(id string) (Framework, error) {
	fw, ok := c.Frameworks[id]
	if !ok {
		return Framework{}, fmt.Errorf("%w: %s", ErrUnknownFramework, id)
	}
	fw.ID = id
	if fw.Name == "" {
		fw.Name = id
	}
	return fw, nil
}

// Validate checks a single framework record.
func (f Framework) Validate() error {
	if f.RepoURL == "" {
		return fmt.Errorf("framework %s: repo_url is required", f.ID)
	}
	if f.Analyzer == "" {
		return fmt.Errorf("framework %s: analyzer is required", f.ID)
	}
	if len(f.Extensions) == 0 {
		return fmt.Errorf("framework %s: extensions must not be empty", f.ID)
	}
	if _, err := f.Start(); err != nil {
		return fmt.Errorf("framework %s: %w", f.ID, err)
	}
	return nil
}

// withDefaults fills the empty fields of f from base. Map entries are
// decoded into fresh values, so a partial override would otherwise drop
// the stock settings.
func (f Framework) withDefaults(base Framework) Framework {
	if f.Name == "" {
		f.Name = base.Name
	}
	if f.RepoURL == "" {
		f.RepoURL = base.RepoURL
	}
	if f.StartDate == "" {
		f.StartDate = base.StartDate
	}
	if f.Analyzer == "" {
		f.Analyzer = base.Analyzer
	}
	if f.CoreSubdir == "" {
		f.CoreSubdir = base.CoreSubdir
	}
	if len(f.Extensions) == 0 {
		f.Extensions = base.Extensions
	}
	return f
}

// Start parses StartDate in the local time zone.
func (f Framework) Start() (time.Time, error) {
	t, err := time.ParseInLocation(StartDateLayout, f.StartDate, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start_date %q: %w", f.StartDate, err)
	}
	return t, nil
}

// Resolve returns path joined onto the project directory unless absolute.
func (p PathsConfig) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.ProjectDir, path)
}

// MirrorDir is where the bare mirror of a framework lives.
func (p PathsConfig) MirrorDir(id string) string {
	return p.Resolve(id + "-core")
}

// WorkDir is the per-framework scratch root.
func (p PathsConfig) WorkDir(id string) string {
	return filepath.Join(p.Resolve(p.OutputDir), id)
}

// ReportPath is where the report of a framework is written.
func (p PathsConfig) ReportPath(id string) string {
	return filepath.Join(p.Resolve(p.DataDir), id+".json")
}

// AnalyzerPath is the analyzer script of a framework.
func (p PathsConfig) AnalyzerPath(fw Framework) string {
	return filepath.Join(p.Resolve(p.ScriptsDir), fw.Analyzer)
}

// CommandTimeout is the timeout for clone, fetch and log commands.
func (g GitConfig) CommandTimeout() time.Duration {
	return time.Duration(g.CommandTimeoutMinutes) * time.Minute
}

// ArchiveTimeout is the timeout for archive-and-extract.
func (g GitConfig) ArchiveTimeout() time.Duration {
	return time.Duration(g.ArchiveTimeoutMinutes) * time.Minute
}

// DeltaTimeout is the analyzer timeout for sparse change sets.
func (a AnalyzerConfig) DeltaTimeout() time.Duration {
	return time.Duration(a.DeltaTimeoutSeconds) * time.Second
}

// FullTimeout is the analyzer timeout for full snapshots.
func (a AnalyzerConfig) FullTimeout() time.Duration {
	return time.Duration(a.FullTimeoutSeconds) * time.Second
}
