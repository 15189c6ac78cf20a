package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"lofi/internal/client"
	"lofi/internal/config"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string
	tokenFlag  *string
	outputFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, apiFlag, tokenFlag, outputFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		tokenFlag:  tokenFlag,
		outputFlag: outputFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.configFlagValue())
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) format() (outputFormat, error) {
	if c.outputFlag == nil {
		return formatTable, nil
	}
	return parseOutputFormat(*c.outputFlag)
}

func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		return strings.TrimSpace(*c.apiFlag)
	}
	if c.config != nil {
		return c.config.API.Bind
	}
	return ""
}

func (c *commandContext) client() (*client.Client, error) {
	if _, err := c.ensureConfig(); err != nil {
		return nil, err
	}
	token := ""
	if c.tokenFlag != nil && *c.tokenFlag != "" {
		token = *c.tokenFlag
	} else if c.config != nil {
		token = c.config.API.Token
	}
	return client.New(c.apiAddress(), token)
}

// explain turns client failures into operator guidance.
func (c *commandContext) explain(err error) error {
	var limited *client.RateLimitedError
	var busy *client.BusyError
	switch {
	case err == nil:
		return nil
	case client.IsAPIUnavailable(err):
		return fmt.Errorf("connect to daemon at %s: %w; start it with `lofid`", c.apiAddress(), err)
	case errors.As(err, &limited):
		return fmt.Errorf("rate limited: try again in %s", limited.RetryAfter)
	case errors.As(err, &busy):
		if busy.ActiveRunID != "" {
			return fmt.Errorf("pipeline busy: run %s is still active", busy.ActiveRunID)
		}
		return errors.New("pipeline busy: another run is active")
	case errors.Is(err, client.ErrUnauthorized):
		return fmt.Errorf("%w: set api.token or pass --token", err)
	}
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
