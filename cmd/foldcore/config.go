/*
 * config.go, part of foldcore.
 *
 * Copyright 2024 Rodrigo Gallego <rgallego{at}protonmaildotcom>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rgallego/foldcore"
)

// fileConfig is the YAML configuration file layout. The model section
// overrides DefaultConfig field by field.
type fileConfig struct {
	Model *fold.Config `yaml:"model"`

	Steps  int    `yaml:"steps"`
	Chains int    `yaml:"chains"`
	Tokens int    `yaml:"tokens_per_chain"`
	Seed   uint64 `yaml:"seed"`
}

// loadConfig merges the optional YAML file over the defaults.
func loadConfig(path string) (*fold.Config, fileConfig, error) {
	cfg := fold.DefaultConfig()
	fc := fileConfig{Model: cfg}
	if path == "" {
		return cfg, fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fc, err
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fc, err
	}
	if fc.Seed != 0 {
		cfg.Seed = fc.Seed
	}
	return cfg, fc, nil
}

// mockOptions derives the synthetic-example sizes from the config file
// and the command-line overrides, flags winning.
func mockOptions(fc fileConfig, chains, tokens int) fold.MockOptions {
	opts := fold.DefaultMockOptions()
	if fc.Chains > 0 {
		opts.Chains = fc.Chains
	}
	if fc.Tokens > 0 {
		opts.TokensPerChain = fc.Tokens
	}
	if chains > 0 {
		opts.Chains = chains
	}
	if tokens > 0 {
		opts.TokensPerChain = tokens
	}
	return opts
}
