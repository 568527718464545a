// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration commands.
//
// Command: config [subcommand]
// Aliases: cfg
//
// Subcommands:
//
//	show (default)       Print the effective configuration
//	path                 Print the config file location
//	init [--force]       Write a default config file
//	get <key>            Print one value (dot notation)
//	set <key> <value>    Change one value in the config file
//
// get and show report the effective values, environment overrides
// included. set and init edit the file only, so overrides are never
// persisted by accident.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/syscallgate/internal/config"
)

// HandleConfig handles "config".
func HandleConfig(args Args) error {
	p := NewArgParser(args.Raw, "force")
	switch p.Subcommand() {
	case "", "show":
		return handleConfigShow(args)
	case "path":
		return handleConfigPath(args)
	case "init":
		return handleConfigInit(args, p.BoolFlag("force"))
	case "get":
		return handleConfigGet(args, p.Positional(1))
	case "set":
		return handleConfigSet(args, p.Positional(1), p.Positional(2))
	default:
		return NewValidationErrorWithExample("config subcommand", p.Subcommand(), "unknown subcommand",
			"syscallgate config [show|path|init|get <key>|set <key> <value>]")
	}
}

// configFilePath is the file set and init write: --config, then
// SYSCALLGATE_CONFIG, then the default TOML location.
func configFilePath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	if p := os.Getenv(config.EnvConfigPath); p != "" {
		return p, nil
	}
	return config.ConfigPathTOML()
}

func saveConfigFile(cfg *config.Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

func handleConfigShow(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	return OutputJSON(args.JSON, "config show", func() (interface{}, error) {
		if !args.JSON {
			fmt.Println(cfg.String())
		}
		shown := cfg.Clone()
		if shown.Bootstrap.PasswordHash != "" {
			shown.Bootstrap.PasswordHash = "[REDACTED]"
		}
		return shown, nil
	})
}

func handleConfigPath(args Args) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	exists := statErr == nil
	return OutputJSON(args.JSON, "config path", func() (interface{}, error) {
		if !args.JSON {
			fmt.Println(path)
			if !exists && !args.Quiet {
				fmt.Fprintln(os.Stderr, DimStyle.Render("(not created yet; run 'syscallgate config init')"))
			}
		}
		return map[string]interface{}{"path": path, "exists": exists}, nil
	})
}

func handleConfigInit(args Args, force bool) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return NewCommandError("config", "init", path+" already exists (use --force to overwrite)", os.ErrExist)
	}
	return OutputJSON(args.JSON, "config init", func() (interface{}, error) {
		if err := saveConfigFile(config.Default(), path); err != nil {
			return nil, err
		}
		if !args.JSON && !args.Quiet {
			fmt.Printf("%s wrote %s\n", RenderStatus("ok"), path)
		}
		return map[string]string{"path": path}, nil
	})
}

func handleConfigGet(args Args, key string) error {
	if key == "" {
		return ErrMissingArgument("key", "syscallgate config get lockout.max_attempts")
	}
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	return OutputJSON(args.JSON, "config get", func() (interface{}, error) {
		value, err := cfg.Get(key)
		if err != nil {
			return nil, unknownKey(key, err)
		}
		if !args.JSON {
			fmt.Println(value)
		}
		return map[string]interface{}{"key": key, "value": value}, nil
	})
}

func handleConfigSet(args Args, key, value string) error {
	if key == "" || value == "" {
		return ErrMissingArgument("key and value", "syscallgate config set lockout.max_attempts 5")
	}
	path, err := configFilePath(args)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		load := config.LoadTOML
		if strings.HasSuffix(path, ".json") {
			load = config.LoadJSON
		}
		if err := load(cfg, path); err != nil {
			return err
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return statErr
	}

	return OutputJSON(args.JSON, "config set", func() (interface{}, error) {
		if err := cfg.Set(key, value); err != nil {
			return nil, unknownKey(key, err)
		}
		cfg.Migrate()
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := saveConfigFile(cfg, path); err != nil {
			return nil, err
		}
		if !args.JSON && !args.Quiet {
			fmt.Printf("%s %s = %s (%s)\n", RenderStatus("ok"), key, value, path)
		}
		return map[string]string{"key": key, "value": value, "path": path}, nil
	})
}

func unknownKey(key string, err error) error {
	return NewValidationErrorWithExample("key", key, err.Error(),
		"valid keys: "+strings.Join(config.GetAllKeys(), ", "))
}
