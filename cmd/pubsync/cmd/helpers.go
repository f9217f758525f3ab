package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bianoble/pubsync/internal/config"
)

// loadConfig reads the config file. A missing file is only an error when
// the user pointed at it explicitly; otherwise built-in defaults apply.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if os.IsNotExist(err) {
		if rootCmd.PersistentFlags().Changed("config") {
			return nil, fmt.Errorf("config file %s does not exist", configPath)
		}
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", configPath, err)
	}
	return cfg, nil
}

// pick returns the flag value when set, the config value otherwise.
func pick(flagVal, cfgVal string) string {
	if flagVal != "" {
		return flagVal
	}
	return cfgVal
}

// pickInt returns the flag value when positive, the config value otherwise.
func pickInt(flagVal, cfgVal int) int {
	if flagVal > 0 {
		return flagVal
	}
	return cfgVal
}

// pickDuration returns the flag value when positive, the config value
// otherwise.
func pickDuration(flagVal, cfgVal time.Duration) time.Duration {
	if flagVal > 0 {
		return flagVal
	}
	return cfgVal
}

// absPath makes a path absolute relative to the current directory,
// leaving empty values alone so validation can report them.
func absPath(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// shortHash abbreviates a commit hash for display.
func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// info prints a user-facing line to stdout.
func info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// errorf prints an error message to stderr.
func errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
