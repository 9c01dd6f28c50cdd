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
	"context"
	"errors"

	"gorm.io/gorm"
)

// Recorder persists finished operations.
// Recorder 持久化已完成的操作。
type Recorder interface {
	Record(ctx context.Context, record *OperationRecord) error
}

// NopRecorder discards every record. It is used when history is disabled.
// NopRecorder 丢弃所有记录，在历史记录禁用时使用。
type NopRecorder struct{}

// Record implements Recorder
func (NopRecorder) Record(ctx context.Context, record *OperationRecord) error {
	return nil
}

// Repository provides data access operations for OperationRecord entities.
// Repository 提供 OperationRecord 实体的数据访问操作。
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Repository instance.
// NewRepository 创建一个新的 Repository 实例。
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create creates a new operation record in the database.
// Returns ErrOperationIDDuplicate if a record with the same operation ID already exists.
// Create 在数据库中创建新的操作记录。
// 如果具有相同操作 ID 的记录已存在，则返回 ErrOperationIDDuplicate。
func (r *Repository) Create(ctx context.Context, record *OperationRecord) error {
	// Validate required fields
	// 验证必填字段
	if record.OperationID == "" {
		return ErrOperationIDEmpty
	}
	if record.Operation == "" {
		return ErrOperationEmpty
	}
	if record.Outcome == "" {
		return ErrOutcomeEmpty
	}

	// Check for duplicate operation ID
	// 检查操作 ID 是否重复
	exists, err := r.ExistsByOperationID(ctx, record.OperationID)
	if err != nil {
		return err
	}
	if exists {
		return ErrOperationIDDuplicate
	}

	if record.PIDs == nil {
		record.PIDs = PIDList{}
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// Record implements Recorder by creating the record.
// Record 通过创建记录实现 Recorder。
func (r *Repository) Record(ctx context.Context, record *OperationRecord) error {
	return r.Create(ctx, record)
}

// GetByOperationID retrieves a record by its operation ID.
// Returns ErrRecordNotFound if the record does not exist.
// GetByOperationID 通过操作 ID 获取记录，不存在时返回 ErrRecordNotFound。
func (r *Repository) GetByOperationID(ctx context.Context, operationID string) (*OperationRecord, error) {
	var record OperationRecord
	if err := r.db.WithContext(ctx).Where("operation_id = ?", operationID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// List retrieves records based on filter criteria with pagination, newest first.
// Returns the list of records and the total count before pagination.
// List 根据过滤条件和分页获取记录列表（最新的在前），返回记录列表和分页前的总数。
func (r *Repository) List(ctx context.Context, filter *RecordFilter) ([]*OperationRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&OperationRecord{})

	// Apply filters - 应用过滤条件
	if filter != nil {
		if filter.Operation != "" {
			query = query.Where("operation = ?", filter.Operation)
		}
		if filter.Outcome != "" {
			query = query.Where("outcome = ?", filter.Outcome)
		}
		if filter.StartTime != nil {
			query = query.Where("started_at >= ?", *filter.StartTime)
		}
		if filter.EndTime != nil {
			query = query.Where("started_at <= ?", *filter.EndTime)
		}
	}

	// Get total count - 获取总数
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Apply pagination - 应用分页
	if filter != nil && filter.PageSize > 0 {
		offset := 0
		if filter.Page > 0 {
			offset = (filter.Page - 1) * filter.PageSize
		}
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var records []*OperationRecord
	if err := query.Order("started_at DESC").Order("id DESC").Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// ExistsByOperationID checks if a record with the given operation ID exists.
// ExistsByOperationID 检查具有给定操作 ID 的记录是否存在。
func (r *Repository) ExistsByOperationID(ctx context.Context, operationID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&OperationRecord{}).Where("operation_id = ?", operationID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
