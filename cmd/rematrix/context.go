package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"rematrix/internal/config"
	"rematrix/internal/store"
)

type commandContext struct {
	serverFlag *string
	tokenFlag  *string
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(serverFlag, tokenFlag, configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		tokenFlag:  tokenFlag,
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// client builds the daemon API client from flags and config.
func (c *commandContext) client() (*apiClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	base := strings.TrimSpace(*c.serverFlag)
	if base == "" {
		base = "http://" + strings.TrimSpace(cfg.Paths.APIBind)
	}
	token := strings.TrimSpace(*c.tokenFlag)
	if token == "" {
		token = strings.TrimSpace(cfg.Paths.APIToken)
	}
	return newAPIClient(base, token), nil
}

// openStore opens the job store directly for offline operation. The caller
// closes it.
func (c *commandContext) openStore() (*store.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return store.Open(cfg)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
