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

import "errors"

// Error definitions for operation history.
// 操作历史的错误定义。
var (
	// ErrRecordNotFound indicates the requested record does not exist.
	// ErrRecordNotFound 表示请求的记录不存在。
	ErrRecordNotFound = errors.New("audit: operation record not found")
	// ErrOperationIDDuplicate indicates a record with the same operation ID already exists.
	// ErrOperationIDDuplicate 表示具有相同操作 ID 的记录已存在。
	ErrOperationIDDuplicate = errors.New("audit: operation ID already exists")
	// ErrOperationIDEmpty indicates the operation ID is empty.
	// ErrOperationIDEmpty 表示操作 ID 为空。
	ErrOperationIDEmpty = errors.New("audit: operation ID cannot be empty")
	// ErrOperationEmpty indicates the operation name is empty.
	// ErrOperationEmpty 表示操作名称为空。
	ErrOperationEmpty = errors.New("audit: operation cannot be empty")
	// ErrOutcomeEmpty indicates the outcome is empty.
	// ErrOutcomeEmpty 表示结果为空。
	ErrOutcomeEmpty = errors.New("audit: outcome cannot be empty")
	// ErrUnsupportedStore indicates an unknown audit.type.
	// ErrUnsupportedStore 表示未知的 audit.type。
	ErrUnsupportedStore = errors.New("audit: unsupported store type")
)
