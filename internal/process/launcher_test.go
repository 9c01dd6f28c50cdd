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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewLauncher tests per-platform launcher selection
// TestNewLauncher 测试按平台选择启动器
func TestNewLauncher(t *testing.T) {
	assert.IsType(t, &ConsoleLauncher{}, NewLauncher("windows"))
	assert.IsType(t, &BackgroundLauncher{}, NewLauncher("linux"))
	assert.IsType(t, &BackgroundLauncher{}, NewLauncher("darwin"))
	assert.Equal(t, "console", NewLauncher("windows").Name())
	assert.Equal(t, "background", NewLauncher("freebsd").Name())
}

// TestConsoleLauncherCommand tests the `start cmd /k` command form
// TestConsoleLauncherCommand 测试 `start cmd /k` 命令形式
func TestConsoleLauncherCommand(t *testing.T) {
	l := &ConsoleLauncher{}
	cmd, err := l.buildCommand(LaunchSpec{
		Command: "npm   start",
		Dir:     `C:\research`,
		Title:   "Knowledge Research Server",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"cmd", "/C", "start", "Knowledge Research Server", "/D", `C:\research`, "cmd", "/k", "npm start",
	}, cmd.Args)
	assert.Equal(t, `C:\research`, cmd.Dir)
}

// TestBackgroundLauncherCommand tests argument splitting and environment
// TestBackgroundLauncherCommand 测试参数分割与环境变量
func TestBackgroundLauncherCommand(t *testing.T) {
	l := &BackgroundLauncher{}
	cmd, err := l.buildCommand(LaunchSpec{
		Command: "npm run start:prod",
		Dir:     "/srv/research",
		Env:     []string{"PORT=3100"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"npm", "run", "start:prod"}, cmd.Args)
	assert.Equal(t, "/srv/research", cmd.Dir)
	assert.Contains(t, cmd.Env, "PORT=3100")
	assert.NotNil(t, cmd.SysProcAttr)
}

// TestLaunchEmptyCommand tests that an empty command is rejected
// TestLaunchEmptyCommand 测试空命令被拒绝
func TestLaunchEmptyCommand(t *testing.T) {
	for _, l := range []Launcher{&BackgroundLauncher{}, &ConsoleLauncher{}} {
		_, err := l.Launch(context.Background(), LaunchSpec{Command: "  "})
		assert.ErrorIs(t, err, ErrEmptyCommand, l.Name())
	}
}

// TestLaunchCancelledContext tests that nothing is spawned after cancellation
// TestLaunchCancelledContext 测试取消后不会启动进程
func TestLaunchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, l := range []Launcher{&BackgroundLauncher{}, &ConsoleLauncher{}} {
		pid, err := l.Launch(ctx, LaunchSpec{Command: "npm start"})
		assert.ErrorIs(t, err, context.Canceled, l.Name())
		assert.Zero(t, pid)
	}
}

// TestTerminateInvalidPID tests PID validation
// TestTerminateInvalidPID 测试 PID 校验
func TestTerminateInvalidPID(t *testing.T) {
	term := NewTerminator()
	assert.ErrorIs(t, term.Terminate(0), ErrInvalidPID)
	assert.ErrorIs(t, term.Terminate(-5), ErrInvalidPID)
	assert.False(t, term.Alive(0))
}
