package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"vidflow/internal/api"
	"vidflow/internal/app"
	"vidflow/internal/config"
	"vidflow/internal/logging"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if _, err := config.LoadEnv("."); err != nil {
			c.configErr = err
			return
		}
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

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// apiAddress prefers --api over the configured bind address.
func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil {
		if value := strings.TrimSpace(*c.apiFlag); value != "" {
			return value
		}
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.API.Bind
	}
	return ""
}

func (c *commandContext) apiClient() *api.Client {
	var token string
	if cfg := c.configValue(); cfg != nil {
		token = cfg.API.Token
	}
	return api.NewClient(c.apiAddress(), token, nil)
}

// commandLogger writes warnings and errors to the command's stderr so local
// wiring problems surface without drowning table output.
func (c *commandContext) commandLogger(cmd *cobra.Command) *slog.Logger {
	cfg := c.configValue()
	format := "console"
	if cfg != nil {
		format = cfg.Logging.Format
	}
	return logging.NewWriter(cmd.ErrOrStderr(), logging.Options{Level: "warn", Format: format})
}

// withApp wires the components locally for the duration of fn.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app.App) error, opts ...app.Option) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	a, err := app.Build(cmd.Context(), cfg, c.commandLogger(cmd), opts...)
	if err != nil {
		return err
	}
	runErr := fn(a)
	return errors.Join(runErr, a.Close())
}

func wrapDaemonError(err error, address string) error {
	var opErr *net.OpError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: %s refused the connection; start it with `vidflow daemon` or `vidflowd`", address)
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return fmt.Errorf("connect to daemon at %s: %w", address, err)
	default:
		return err
	}
}

// daemonUnreachable reports a transport failure, as opposed to an HTTP error reply.
func daemonUnreachable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("an input file is required (use - for stdin)")
	}
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
