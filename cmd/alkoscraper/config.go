package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"alkoscraper/pkg/config"
	"alkoscraper/pkg/logger"
	"alkoscraper/pkg/proxy"
	"alkoscraper/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage alkoscraper configuration.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables (ALKOSCRAPER_*, .env files included)
  - Configuration file
  - Default values`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default",
	RunE:  runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and check the proxy list",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	return nil
}

// maskedConfig returns a copy that is safe to print
func maskedConfig(cfg *config.Config) config.Config {
	display := *cfg
	if display.Proxy.Password != "" {
		display.Proxy.Password = "********"
	}
	return display
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	display := maskedConfig(cfg)
	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	if path := configFile; path != "" {
		ui.PrintInfo("Configuration file", path)
	} else if path := config.FindConfigFile(); path != "" {
		ui.PrintInfo("Configuration file", path)
	} else {
		ui.PrintInfo("Configuration file", "none, using defaults")
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	pool := proxy.Load(cfg.Proxy.File, logger.NewNopLogger())
	if pool.Disabled() {
		ui.PrintWarning(fmt.Sprintf("No usable proxies in %s, requests will go out directly", cfg.Proxy.File))
	} else {
		ui.PrintInfo("Proxies", fmt.Sprintf("%d in %s", pool.Len(), cfg.Proxy.File))
	}
	if _, err := os.Stat(cfg.Spider.InputFile); err != nil {
		ui.PrintWarning("Input file not readable: " + cfg.Spider.InputFile)
	}

	ui.PrintSuccess("Configuration is valid")
	ui.PrintInfo("City", cfg.Spider.City)
	ui.PrintInfo("Concurrency", fmt.Sprintf("%d", cfg.Crawl.Concurrency))
	ui.PrintInfo("Proxy retries", fmt.Sprintf("%d on %v", cfg.Retry.MaxRetries, cfg.Retry.HTTPCodes))
	ui.PrintInfo("Feed", fmt.Sprintf("%s (%s)", cfg.Feed.Path, cfg.Feed.Format))
	return nil
}
