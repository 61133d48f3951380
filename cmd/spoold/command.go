package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"mail-spool/internal/server"
	"mail-spool/internal/spool"
)

const envPrefix = "MAILSPOOL"

// Flag names double as viper keys and, upper-cased with dashes replaced,
// as MAILSPOOL_* environment variables.
const (
	flagConfig          = "config"
	flagSpoolDir        = "spool-dir"
	flagPort            = "port"
	flagBind            = "bind"
	flagMaxBodyBytes    = "max-body-bytes"
	flagExtension       = "extension"
	flagContentType     = "content-type"
	flagAuthPolicy      = "auth-policy"
	flagAuthUser        = "auth-user"
	flagAuthPass        = "auth-pass"
	flagAuthRealm       = "auth-realm"
	flagLockoutAttempts = "lockout-attempts"
	flagLockoutDuration = "lockout-duration"
	flagRateLimit       = "rate-limit"
	flagTrustProxy      = "trust-proxy-headers"
	flagMetrics         = "metrics"
	flagLogLevel        = "log-level"
	flagLogFormat       = "log-format"
)

// runFunc starts the daemon with a validated configuration.
type runFunc func(ctx context.Context, cfg server.Config) error

func buildInfo() server.BuildInfo {
	return server.BuildInfo{
		Name:    "mail-spool",
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

func newRootCommand(start runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spoold",
		Short: "HTTP drop box that spools every POSTed payload to its own file",
		Long: `spoold accepts payloads on POST / and stores each one, verbatim, as
<uuid>.json in the spool directory. Stored items are listed and served under
/mails/, optionally behind HTTP Basic authentication.

Every flag can also be set through the environment (MAILSPOOL_SPOOL_DIR,
MAILSPOOL_AUTH_PASS, ...) or a config file passed with --config.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return start(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String(flagConfig, "", "optional config file (yaml, toml or json)")
	flags.StringP(flagSpoolDir, "s", "/tmp", "spool directory")
	flags.IntP(flagPort, "p", 8080, "listen port")
	flags.String(flagBind, "127.0.0.1", "listen address")
	flags.Int64(flagMaxBodyBytes, server.DefaultMaxBodyBytes, "maximum accepted payload size in bytes")
	flags.String(flagExtension, spool.DefaultExtension, "file extension of stored items")
	flags.String(flagContentType, spool.DefaultContentType, "Content-Type used when serving items")
	flags.String(flagAuthPolicy, string(server.AuthPolicyOff), "access policy for /mails/: off or basic")
	flags.String(flagAuthUser, "", "user name for basic auth")
	flags.String(flagAuthPass, "", "secret for basic auth, plain or bcrypt hash")
	flags.String(flagAuthRealm, server.DefaultRealm, "realm sent in auth challenges")
	flags.Int(flagLockoutAttempts, 5, "failed attempts before a user is locked out, 0 disables")
	flags.Duration(flagLockoutDuration, 15*time.Minute, "how long a locked user stays locked")
	flags.Int(flagRateLimit, 0, "requests per minute per client IP, 0 disables")
	flags.Bool(flagTrustProxy, false, "take the client IP from X-Forwarded-For / X-Real-IP")
	flags.Bool(flagMetrics, true, "serve Prometheus metrics on /metrics")
	flags.String(flagLogLevel, string(server.LogLevelInfo), "log level: debug, info, warn, error")
	flags.String(flagLogFormat, server.LogFormatText, "log format: text or json")

	cmd.AddCommand(newVersionCommand(), newHashCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := buildInfo()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (commit %s, built %s)\n", b, b.Commit, b.Date)
			return err
		},
	}
}

// newViper binds flags and the MAILSPOOL_* environment into a fresh viper.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v, nil
}

// loadConfig merges flags, environment and the optional config file, in
// that order of precedence, and validates the result.
func loadConfig(v *viper.Viper) (server.Config, error) {
	if path := v.GetString(flagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return server.Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := server.Config{
		Addr:  net.JoinHostPort(v.GetString(flagBind), strconv.Itoa(v.GetInt(flagPort))),
		Build: buildInfo(),
		Spool: spool.Config{
			Dir:         v.GetString(flagSpoolDir),
			Extension:   v.GetString(flagExtension),
			ContentType: v.GetString(flagContentType),
		},
		Auth: server.AuthConfig{
			Policy:          server.AuthPolicy(v.GetString(flagAuthPolicy)),
			User:            v.GetString(flagAuthUser),
			Pass:            v.GetString(flagAuthPass),
			Realm:           v.GetString(flagAuthRealm),
			LockoutAttempts: v.GetInt(flagLockoutAttempts),
			LockoutDuration: v.GetDuration(flagLockoutDuration),
		},
		Log: server.LogConfig{
			Level:  v.GetString(flagLogLevel),
			Format: v.GetString(flagLogFormat),
		},
		MaxBodyBytes:      v.GetInt64(flagMaxBodyBytes),
		RateLimit:         v.GetInt(flagRateLimit),
		TrustProxyHeaders: v.GetBool(flagTrustProxy),
		Metrics:           v.GetBool(flagMetrics),
	}

	if err := server.ValidateConfig(cfg); err != nil {
		return server.Config{}, err
	}
	return cfg, nil
}
