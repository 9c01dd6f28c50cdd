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

package controller

import (
	"time"

	"github.com/knowledgeresearch/servermgr/internal/precheck"
)

// Operation names a controller action
// Operation 表示控制器动作名称
type Operation string

const (
	OperationStart   Operation = "start"
	OperationStop    Operation = "stop"
	OperationRestart Operation = "restart"
	OperationStatus  Operation = "status"
)

// Outcome is the observed result of an operation
// Outcome 表示操作的观察结果
type Outcome string

const (
	OutcomeAlreadyRunning Outcome = "already_running"
	OutcomeStarted        Outcome = "started"
	OutcomeStartTimeout   Outcome = "start_timeout"
	OutcomePrecheckFailed Outcome = "precheck_failed"
	OutcomeLaunchFailed   Outcome = "launch_failed"
	OutcomeNothingToStop  Outcome = "nothing_to_stop"
	OutcomeStopped        Outcome = "stopped"
	OutcomeStillRunning   Outcome = "still_running"
	OutcomeRunning        Outcome = "running"
	OutcomeNotRunning     Outcome = "not_running"
)

// Result describes one finished operation
// Result 描述一次已完成的操作
type Result struct {
	OperationID string    `json:"operation_id" yaml:"operation_id"`
	Operation   Operation `json:"operation" yaml:"operation"`
	Outcome     Outcome   `json:"outcome" yaml:"outcome"`
	Message     string    `json:"message" yaml:"message"`

	// Running is the liveness observed at the end of the operation
	// Running 是操作结束时观察到的存活状态
	Running bool `json:"running" yaml:"running"`

	URL  string `json:"url" yaml:"url"`
	PIDs []int  `json:"pids" yaml:"pids"`

	// Precheck is set when start ran the prechecks
	// Precheck 在启动执行了预检查时设置
	Precheck *precheck.Result `json:"precheck,omitempty" yaml:"precheck,omitempty"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// Duration returns how long the operation took
// Duration 返回操作耗时
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
