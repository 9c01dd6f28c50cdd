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

// Package audit keeps the history of controller operations in a SQL store.
// audit 包将控制器操作的历史记录保存在 SQL 存储中。
package audit

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// PIDList is a list of process IDs stored as a JSON column.
// PIDList 是以 JSON 列存储的进程 ID 列表。
type PIDList []int

// Value implements the driver.Valuer interface for database storage.
// Value 实现 driver.Valuer 接口用于数据库存储。
func (p PIDList) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the sql.Scanner interface for database retrieval.
// Scan 实现 sql.Scanner 接口用于数据库读取。
func (p *PIDList) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*p = PIDList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("audit: failed to scan PIDList - expected []byte or string")
	}
	if len(data) == 0 {
		*p = PIDList{}
		return nil
	}
	return json.Unmarshal(data, p)
}

// OperationRecord is one finished controller operation.
// OperationRecord 表示一次已完成的控制器操作。
type OperationRecord struct {
	ID          uint      `json:"id" yaml:"id" gorm:"primaryKey;autoIncrement"`
	OperationID string    `json:"operation_id" yaml:"operation_id" gorm:"size:36;uniqueIndex;not null"`
	Operation   string    `json:"operation" yaml:"operation" gorm:"size:20;not null;index"`
	Outcome     string    `json:"outcome" yaml:"outcome" gorm:"size:30;not null;index"`
	Message     string    `json:"message" yaml:"message" gorm:"type:text"`
	PIDs        PIDList   `json:"pids" yaml:"pids" gorm:"type:text"`
	Host        string    `json:"host" yaml:"host" gorm:"size:255"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at" gorm:"index"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
	DurationMs  int64     `json:"duration_ms" yaml:"duration_ms"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the OperationRecord model.
// TableName 指定 OperationRecord 模型的表名。
func (OperationRecord) TableName() string {
	return "operation_records"
}

// RecordFilter represents filter criteria for querying operation records.
// RecordFilter 表示查询操作记录的过滤条件。
type RecordFilter struct {
	Operation string     `json:"operation"`
	Outcome   string     `json:"outcome"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
}
