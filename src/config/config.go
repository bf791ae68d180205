package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables recognised by btrsnap. There is deliberately no
// configuration file; cron environments set these inline.
const (
	EnvTarsnapOpts     = "TARSNAP_OPTS"
	EnvTarsnapCache    = "TARSNAP_CACHE"
	EnvTarsnapKey      = "TARSNAP_KEY"
	EnvAlertRecipients = "ALERT_RECIPIENTS"
)

const (
	DefaultCacheDir        = "/var/cache/tarsnap-cache"
	DefaultKeyFile         = "/root/tarsnap.key"
	DefaultAlertRecipients = "root"
)

// Config holds the per-run settings read from the environment.
type Config struct {
	// TarsnapOpts is passed verbatim (whitespace-split) to every tarsnap
	// invocation.
	TarsnapOpts string
	// CacheDir is the shared tarsnap cache directory, created mode 0700.
	CacheDir string
	// KeyFile is the tarsnap key file.
	KeyFile string
	// AlertRecipients receives failure mail; empty disables alerting.
	AlertRecipients string
}

// FromEnv reads the recognised environment variables, applying defaults for
// any that are unset.
func FromEnv() Config {
	return Config{
		TarsnapOpts:     os.Getenv(EnvTarsnapOpts),
		CacheDir:        getenvDefault(EnvTarsnapCache, DefaultCacheDir),
		KeyFile:         getenvDefault(EnvTarsnapKey, DefaultKeyFile),
		AlertRecipients: getenvDefault(EnvAlertRecipients, DefaultAlertRecipients),
	}
}

// ExtraOpts returns TARSNAP_OPTS split into argv form.
func (c Config) ExtraOpts() []string {
	return strings.Fields(c.TarsnapOpts)
}

// Recipients returns the alert recipients split into individual addresses.
func (c Config) Recipients() []string {
	return strings.Fields(c.AlertRecipients)
}

// EnvUsage renders the recognised environment variables with their current
// values, for inclusion in help output.
func (c Config) EnvUsage() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %s=%q\n", EnvTarsnapOpts, c.TarsnapOpts)
	fmt.Fprintf(&b, "  %s=%q\n", EnvTarsnapCache, c.CacheDir)
	fmt.Fprintf(&b, "  %s=%q\n", EnvTarsnapKey, c.KeyFile)
	fmt.Fprintf(&b, "  %s=%q", EnvAlertRecipients, c.AlertRecipients)
	return b.String()
}

func getenvDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
