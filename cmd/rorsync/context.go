package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"rorsync/internal/config"
	"rorsync/internal/logging"
	"rorsync/internal/matchcache"
	"rorsync/internal/ratelimit"
	"rorsync/internal/registry"
	"rorsync/internal/ror"
)

type commandContext struct {
	configFlag  *string
	apiKeyFlag  *string
	baseURLFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, apiKeyFlag, baseURLFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		apiKeyFlag:  apiKeyFlag,
		baseURLFlag: baseURLFlag,
	}
}

// ensureConfig loads the configuration once and applies command-line
// credential overrides on top of file and environment values.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if key := flagValue(c.apiKeyFlag); key != "" {
			cfg.Registry.APIKey = key
		}
		if base := flagValue(c.baseURLFlag); base != "" {
			cfg.Registry.BaseURL = strings.TrimRight(base, "/")
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func flagValue(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}

// commandRun carries what one invocation needs: the config, a logger that
// writes to the console and the audit log, and a context tagged with a run id.
type commandRun struct {
	ctx    context.Context
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

func (c *commandContext) startRun(cmd *cobra.Command, name string) (*commandRun, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.NewFromConfig(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	runID := logging.NewRunID()
	ctx := logging.WithRunID(cmd.Context(), runID)
	logger = logging.NewComponentLogger(logger, "cli-"+name)
	logging.WithContext(ctx, logger).Info("run started",
		logging.String("command", name),
		logging.String("config", c.configPath),
	)
	return &commandRun{ctx: ctx, cfg: cfg, logger: logger, closer: closer}, nil
}

func (r *commandRun) finish(err error) {
	logger := logging.WithContext(r.ctx, r.logger)
	if err != nil {
		logger.Info("run finished", logging.Outcome(logging.OutcomeFailed), logging.Error(err))
	} else {
		logger.Info("run finished", logging.Outcome(logging.OutcomeSucceeded))
	}
	_ = r.closer.Close()
}

func (r *commandRun) registryClient() (*registry.Client, error) {
	if err := r.cfg.RequireRegistry(); err != nil {
		return nil, err
	}
	return registry.New(r.cfg.Registry.BaseURL, r.cfg.Registry.APIKey,
		registry.WithTimeout(r.cfg.RegistryTimeout()))
}

// matcher builds the matching core with the configured limiter and, when
// enabled, the persistent cache. The returned func releases the cache.
func (r *commandRun) matcher() (*ror.Matcher, func() error, error) {
	client, err := ror.New(r.cfg.Matcher.BaseURL, ror.WithTimeout(r.cfg.MatcherTimeout()))
	if err != nil {
		return nil, nil, err
	}
	opts := []ror.MatcherOption{ror.WithLogger(r.logger)}
	if limiter := ratelimit.NewWindow(r.cfg.Matcher.MaxRequests, r.cfg.MatcherWindow()); limiter != nil {
		opts = append(opts, ror.WithLimiter(limiter))
	}
	release := func() error { return nil }
	if r.cfg.MatchCache.Enabled {
		cache, err := matchcache.Open(r.cfg.MatchCache.Path, r.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open match cache: %w", err)
		}
		opts = append(opts, ror.WithCache(cache))
		release = cache.Close
	}
	return ror.NewMatcher(client, opts...), release, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
