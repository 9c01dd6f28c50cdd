//go:build !windows

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
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Terminate sends SIGTERM to pid
// Terminate 向 pid 发送 SIGTERM
func (t *SignalTerminator) Terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return mapKillError(pid, err)
	}
	return nil
}

// Alive reports whether pid exists. EPERM means it exists under another user.
// Alive 判断 pid 是否存在，EPERM 表示进程存在但属于其他用户。
func (t *SignalTerminator) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func mapKillError(pid int, err error) error {
	switch {
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
	case errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: pid %d", ErrAccessDenied, pid)
	default:
		return fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}
}
