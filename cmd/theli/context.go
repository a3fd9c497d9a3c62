package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"theli/internal/config"
	"theli/internal/instrument"
	"theli/internal/journal"
	"theli/internal/logging"
	"theli/internal/params"
	"theli/internal/reduction"
	"theli/internal/syslock"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	journal *journal.Journal
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// diagnostics returns the slog logger writing to the diagnostics log. A
// logger that cannot be built degrades to a no-op logger.
func (c *commandContext) diagnostics() *slog.Logger {
	c.loggerOnce.Do(func() {
		c.logger = logging.NewNop()
		if c.config == nil {
			return
		}
		logger, err := logging.NewFromConfig(c.config)
		if err != nil {
			return
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) lock() *syslock.Lock {
	return syslock.New(c.config.LockPath())
}

func (c *commandContext) catalog() (*instrument.Catalog, error) {
	return instrument.Discover(c.config.Paths.ScriptsDir, c.config.Paths.UserInstrumentsDir)
}

// paramStore opens the parameter files of the THELI home directory.
func (c *commandContext) paramStore(guard params.Guard) (*params.Store, error) {
	env := map[string]string{"GUIVERSION": version}
	if kernel := reduction.HostSystem().Kernel(); kernel != "" {
		env["KERNEL"] = kernel
	}
	opts := []params.Option{
		params.WithTemplates(c.config.ParameterTemplate),
		params.WithSystemDefaults(c.config.SystemDefaultsPath()),
		params.WithEnvironment(env),
	}
	if guard != nil {
		opts = append(opts, params.WithGuard(guard))
	}
	return params.Open(c.config.Paths.PipeHome, opts...)
}

// openJournal opens the run journal once per command. It returns nil when
// the journal is disabled.
func (c *commandContext) openJournal() (*journal.Journal, error) {
	if c.journal != nil || !c.config.Journal.Enabled {
		return c.journal, nil
	}
	j, err := journal.Open(c.config.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	c.journal = j
	return j, nil
}

func (c *commandContext) requireJournal() (*journal.Journal, error) {
	j, err := c.openJournal()
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, errors.New("the run journal is disabled ([journal].enabled = false)")
	}
	return j, nil
}

func (c *commandContext) close() error {
	if c.journal == nil {
		return nil
	}
	err := c.journal.Close()
	c.journal = nil
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
