/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"io"

	"github.com/knowledgeresearch/servermgr/internal/audit"
	"github.com/knowledgeresearch/servermgr/internal/config"
	"github.com/knowledgeresearch/servermgr/internal/controller"
	"github.com/knowledgeresearch/servermgr/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the components shared by the subcommands
// app 保存子命令共用的组件
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB

	// history is nil when the operation history is unavailable
	// history 在操作历史不可用时为 nil
	history *audit.Repository

	ctrl *controller.Controller
}

// loadConfig loads the configuration and applies the global flag overrides
// loadConfig 加载配置并应用全局标志覆盖
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("work-dir") {
		cfg.Server.WorkDir = workDir
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if verbose {
		cfg.Log.Console = true
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp wires config, logger, history store and controller.
// Operator text goes to out.
// newApp 组装配置、日志、历史存储和控制器，面向操作者的文本写入 out。
func newApp(cmd *cobra.Command, out io.Writer) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Log
	logCfg.File = cfg.ResolvePath(logCfg.File)
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: log}

	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.Audit.Enabled {
		auditCfg := cfg.Audit
		auditCfg.SQLitePath = cfg.ResolvePath(auditCfg.SQLitePath)
		db, err := audit.Open(auditCfg, log)
		if err != nil {
			log.Warn("Operation history unavailable", zap.Error(err))
		} else {
			a.db = db
			a.history = audit.NewRepository(db)
			recorder = a.history
		}
	}

	a.ctrl = controller.New(cfg, controller.Dependencies{
		Recorder: recorder,
		Out:      out,
		Logger:   log,
	})

	log.Debug("servermgr initialized",
		zap.String("command", cmd.Name()),
		zap.String("config", cfg.String()))
	return a, nil
}

// close releases the history store and flushes the logger
// close 释放历史存储并刷新日志
func (a *app) close() {
	if err := audit.Close(a.db); err != nil {
		a.logger.Warn("Failed to close operation history", zap.Error(err))
	}
	_ = a.logger.Sync()
}
