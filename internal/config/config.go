// Package config loads the daemon configuration from layered sources:
// global, then project, then environment overrides.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/clawd-io/clawd/pkg/types"
	"github.com/tidwall/jsonc"
)

// Load merges global config (~/.config/clawd/), project config
// (<directory>/.clawd/), and environment overrides, in that priority order.
func Load(directory string) (*types.Config, error) {
	config := types.DefaultConfig()
	config.Providers = make(map[string]types.ProviderConfig)
	config.MCP = make(map[string]types.MCPConfig)

	globalPath := GetPaths().Config
	_ = loadConfigFile(filepath.Join(globalPath, "clawd.json"), config)
	_ = loadConfigFile(filepath.Join(globalPath, "clawd.jsonc"), config)

	if directory != "" {
		_ = loadConfigFile(filepath.Join(directory, ".clawd", "clawd.json"), config)
		_ = loadConfigFile(filepath.Join(directory, ".clawd", "clawd.jsonc"), config)
	}

	applyEnvOverrides(config)

	return config, nil
}

func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

func mergeConfig(target, source *types.Config) {
	if source.Port != 0 {
		target.Port = source.Port
	}
	if source.FloorModel != "" {
		target.FloorModel = source.FloorModel
	}
	if source.MaxModel != "" {
		target.MaxModel = source.MaxModel
	}
	if source.MonthlyBudgetUSD != 0 {
		target.MonthlyBudgetUSD = source.MonthlyBudgetUSD
	}
	if source.MaxConcurrentActive != 0 {
		target.MaxConcurrentActive = source.MaxConcurrentActive
	}
	if source.RAMBudgetPct != 0 {
		target.RAMBudgetPct = source.RAMBudgetPct
	}
	target.AutoSelect = source.AutoSelect || target.AutoSelect

	if source.Providers != nil {
		if target.Providers == nil {
			target.Providers = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Providers {
			target.Providers[k] = v
		}
	}
	if source.MCP != nil {
		if target.MCP == nil {
			target.MCP = make(map[string]types.MCPConfig)
		}
		for k, v := range source.MCP {
			target.MCP[k] = v
		}
	}
	if source.Permission != nil {
		target.Permission = source.Permission
	}
}

func applyEnvOverrides(config *types.Config) {
	if port := os.Getenv("CLAWD_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if budget := os.Getenv("CLAWD_MONTHLY_BUDGET_USD"); budget != "" {
		if b, err := strconv.ParseFloat(budget, 64); err == nil {
			config.MonthlyBudgetUSD = b
		}
	}
}

// Save persists the configuration as indented JSON.
func Save(config *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
