package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "LIBFORGE"

// settings are the tool-wide knobs shared by every command. Each can be set
// by flag or by a LIBFORGE_* environment variable; flags win.
type settings struct {
	LogLevel   string
	Timeout    time.Duration
	Jobs       int
	SigningKey string
	Optimizer  string
	Repository string
}

func registerSettings(v *viper.Viper, flags *pflag.FlagSet) {
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Duration("timeout", 5*time.Minute, "upper bound for each optimize and digest step (0 disables)")
	flags.Int("jobs", 4, "maximum concurrent builds")
	flags.String("signing-key", "", "SSH private key used for signed digests")
	flags.String("optimizer", "", "external optimizer command; empty uses the built-in recompressor")
	flags.String("repository", "", "local artifact repository root")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	flags.VisitAll(func(f *pflag.Flag) {
		// BindPFlag only fails on a nil flag.
		_ = v.BindPFlag(f.Name, f)
	})
}

func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{
		LogLevel:   v.GetString("log-level"),
		Timeout:    v.GetDuration("timeout"),
		Jobs:       v.GetInt("jobs"),
		SigningKey: v.GetString("signing-key"),
		Optimizer:  v.GetString("optimizer"),
		Repository: v.GetString("repository"),
	}
	if s.Timeout < 0 {
		return settings{}, fmt.Errorf("timeout must not be negative, got %s", s.Timeout)
	}
	if s.Jobs < 1 {
		return settings{}, fmt.Errorf("jobs must be at least 1, got %d", s.Jobs)
	}
	return s, nil
}
