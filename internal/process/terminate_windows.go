//go:build windows

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

package process

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Terminate ends pid. Windows has no SIGTERM, so this is TerminateProcess.
// Terminate 结束 pid。Windows 没有 SIGTERM，因此使用 TerminateProcess。
func (t *SignalTerminator) Terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("%w: pid %d: %v", ErrProcessNotFound, pid, err)
	}
	if err := proc.Kill(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "access is denied") {
			return fmt.Errorf("%w: pid %d", ErrAccessDenied, pid)
		}
		return fmt.Errorf("failed to terminate pid %d: %w", pid, err)
	}
	return nil
}

// Alive checks pid with tasklist
// Alive 使用 tasklist 检查 pid
func (t *SignalTerminator) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	output, err := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/NH").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(output), strconv.Itoa(pid))
}
