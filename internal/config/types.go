package config

import "time"

// Defaults applied when neither the config file nor flags supply a value.
const (
	DefaultRemote        = "origin"
	DefaultMaxAttempts   = 3
	DefaultRetryDelay    = 5 * time.Second
	DefaultAuthorName    = "pubsync-bot"
	DefaultAuthorEmail   = "pubsync-bot@localhost"
	DefaultCommitMessage = "chore: publish {{.SourceDir}} to {{.TargetDir}}"
)

// Config represents the pubsync.yaml configuration file. Every field is
// optional on the command line level: flags override file values and
// defaults fill whatever remains.
type Config struct {
	Version       int    `yaml:"version"`
	RepoDir       string `yaml:"repo_dir,omitempty"`
	Remote        string `yaml:"remote,omitempty"`
	Branch        string `yaml:"branch,omitempty"`
	SourceDir     string `yaml:"source_dir,omitempty"`
	TargetDir     string `yaml:"target_dir,omitempty"`
	CommitMessage string `yaml:"commit_message,omitempty"`
	Author        Author `yaml:"author,omitempty"`
	Retry         Retry  `yaml:"retry,omitempty"`
}

// Author is the bot identity recorded on publish commits.
type Author struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Retry holds the retry policy. Delay uses Go duration syntax ("5s").
type Retry struct {
	MaxAttempts int    `yaml:"max_attempts,omitempty"`
	Delay       string `yaml:"delay,omitempty"`
}

// DelayDuration parses the configured delay, or returns the default when
// unset.
func (r Retry) DelayDuration() (time.Duration, error) {
	if r.Delay == "" {
		return DefaultRetryDelay, nil
	}
	return time.ParseDuration(r.Delay)
}

// Default returns a Config carrying only built-in defaults, used when no
// config file exists.
func Default() *Config {
	cfg := &Config{Version: 1}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with built-in defaults. Required
// request fields (source, target, branch) are deliberately left empty:
// those must come from the file or from flags.
func (c *Config) ApplyDefaults() {
	if c.RepoDir == "" {
		c.RepoDir = "."
	}
	if c.Remote == "" {
		c.Remote = DefaultRemote
	}
	if c.CommitMessage == "" {
		c.CommitMessage = DefaultCommitMessage
	}
	if c.Author.Name == "" && c.Author.Email == "" {
		c.Author.Name = DefaultAuthorName
		c.Author.Email = DefaultAuthorEmail
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
}
