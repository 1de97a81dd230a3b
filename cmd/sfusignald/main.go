// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sfurelay/rtcd/logger"
	"github.com/sfurelay/rtcd/service"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.toml", "Path to the configuration file for the sfusignald service.")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("sfusignald: failed to load config: %s", err.Error())
	}

	if err := cfg.IsValid(); err != nil {
		log.Fatalf("sfusignald: failed to validate config: %s", err.Error())
	}

	mlogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("sfusignald: failed to create logger: %s", err.Error())
	}

	srvc, err := service.New(cfg, mlogger)
	if err != nil {
		log.Fatalf("sfusignald: failed to create service: %s", err.Error())
	}

	if err := srvc.Start(); err != nil {
		log.Fatalf("sfusignald: failed to start service: %s", err.Error())
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if err := srvc.Stop(); err != nil {
		log.Fatalf("sfusignald: failed to stop service: %s", err.Error())
	}
}
