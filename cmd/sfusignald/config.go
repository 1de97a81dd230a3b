// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"fmt"

	"github.com/sfurelay/rtcd/service"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// loadConfig reads the config file and returns a new service.Config,
// overriding values in the file with any corresponding environment
// variables.
func loadConfig(path string) (service.Config, error) {
	var cfg service.Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config file: %w", err)
	}
	if err := envconfig.Process("sfusignald", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
