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

package audit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/knowledgeresearch/servermgr/internal/config"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the history store selected by cfg.Type and migrates it.
// SQLitePath must already be resolved by the caller.
// Open 根据 cfg.Type 连接历史存储并执行迁移，SQLitePath 需由调用方预先解析。
func Open(cfg config.AuditConfig, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dbType := cfg.Type
	if dbType == "" {
		dbType = config.AuditTypeSQLite
	}

	var dialector gorm.Dialector
	switch dbType {
	case config.AuditTypeSQLite:
		d, err := sqliteDialector(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		dialector = d
	case config.AuditTypeMySQL:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("audit: dsn is required for %s", dbType)
		}
		dialector = mysql.Open(cfg.DSN)
	case config.AuditTypePostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("audit: dsn is required for %s", dbType)
		}
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %s (supported: sqlite, mysql, postgres)", ErrUnsupportedStore, dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("audit: failed to connect to %s: %w", dbType, err)
	}

	if err := db.AutoMigrate(&OperationRecord{}); err != nil {
		_ = Close(db)
		return nil, fmt.Errorf("audit: failed to migrate: %w", err)
	}

	log.Debug("Operation history store opened", zap.String("type", dbType))
	return db, nil
}

func sqliteDialector(path string) (gorm.Dialector, error) {
	if path == "" {
		path = config.DefaultAuditSQLite
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("audit: failed to create sqlite directory: %w", err)
	}
	return sqlite.Open(path), nil
}

// Close releases the underlying connection pool.
// Close 释放底层连接池。
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
