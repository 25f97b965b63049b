package main

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/supportdesk/supportdesk/internal/app"
	"github.com/supportdesk/supportdesk/internal/config"
)

type globalFlags struct {
	envFile   string
	queueFile string
	backupDir string
	exportDir string
	json      bool
	verbose   bool
}

type commandContext struct {
	flags *globalFlags

	components *app.Components
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// ensure builds the components once per invocation, reading .env and the
// environment first and applying flag overrides on top.
func (c *commandContext) ensure(cmd *cobra.Command) (*app.Components, error) {
	if c.components != nil {
		return c.components, nil
	}

	var files []string
	if f := strings.TrimSpace(c.flags.envFile); f != "" {
		files = append(files, f)
	}
	if err := config.LoadDotEnv(files...); err != nil {
		return nil, err
	}

	cfg := config.FromEnv()
	if c.flags.queueFile != "" {
		cfg.QueueFile = c.flags.queueFile
	}
	if c.flags.backupDir != "" {
		cfg.BackupDir = c.flags.backupDir
	}
	if c.flags.exportDir != "" {
		cfg.ExportDir = c.flags.exportDir
	}

	level := zerolog.WarnLevel
	if c.flags.verbose {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).
		Level(level).
		With().
		Timestamp().
		Logger()

	components, err := app.Build(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.components = components
	return components, nil
}
