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

// Package process launches and terminates the managed server process.
// process 包负责启动和终止被管理的服务器进程。
//
// The launch form depends on the platform: Unix forks a background child in its
// own process group, Windows opens the server in a new console window.
// 启动方式依平台而定：Unix 在独立进程组中后台运行，Windows 在新控制台窗口中运行。
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Common errors for process control
// 进程控制的常见错误
var (
	// ErrEmptyCommand indicates the launch command has no program
	// ErrEmptyCommand 表示启动命令为空
	ErrEmptyCommand = errors.New("launch command is empty")

	// ErrLaunchFailed indicates the server process could not be spawned
	// ErrLaunchFailed 表示无法启动服务器进程
	ErrLaunchFailed = errors.New("process failed to launch")

	// ErrProcessNotFound indicates the process does not exist
	// ErrProcessNotFound 表示进程不存在
	ErrProcessNotFound = errors.New("process not found")

	// ErrAccessDenied indicates the caller may not signal the process
	// ErrAccessDenied 表示无权向该进程发送信号
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidPID indicates a non-positive PID
	// ErrInvalidPID 表示 PID 非正数
	ErrInvalidPID = errors.New("invalid pid")
)

// LaunchSpec describes how to start the server
// LaunchSpec 描述如何启动服务器
type LaunchSpec struct {
	// Command is split on whitespace, e.g. "npm start"
	// Command 按空白分割，例如 "npm start"
	Command string

	// Dir is the working directory
	// Dir 是工作目录
	Dir string

	// LogFile receives stdout and stderr when set (background launch only)
	// LogFile 设置后接收标准输出与标准错误（仅后台启动）
	LogFile string

	// Title names the console window (console launch only)
	// Title 是控制台窗口标题（仅控制台启动）
	Title string

	// Env is appended to the inherited environment
	// Env 追加到继承的环境变量之后
	Env []string
}

// Launcher spawns the server detached from the caller.
// The returned PID is the spawned child, which may be a wrapper such as npm or cmd.
// Launcher 以与调用者分离的方式启动服务器，返回的 PID 可能是 npm 或 cmd 等包装进程。
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (int, error)
	Name() string
}

// NewLauncher selects the launcher for goos
// NewLauncher 根据 goos 选择启动器
func NewLauncher(goos string) Launcher {
	if goos == "windows" {
		return &ConsoleLauncher{}
	}
	return &BackgroundLauncher{}
}

// BackgroundLauncher runs the server as a background child in a new process group
// BackgroundLauncher 在新进程组中以后台子进程运行服务器
type BackgroundLauncher struct{}

// Name implements Launcher
func (l *BackgroundLauncher) Name() string { return "background" }

// Launch implements Launcher. Output goes to the null device unless spec.LogFile is set.
// Launch 实现 Launcher。除非设置 spec.LogFile，否则输出被丢弃。
func (l *BackgroundLauncher) Launch(ctx context.Context, spec LaunchSpec) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cmd, err := l.buildCommand(spec)
	if err != nil {
		return 0, err
	}

	if spec.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogFile), 0755); err != nil {
			return 0, fmt.Errorf("%w: failed to create log directory: %v", ErrLaunchFailed, err)
		}
		logWriter, err := os.OpenFile(spec.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to open log file: %v", ErrLaunchFailed, err)
		}
		// The child keeps its own descriptor / 子进程持有自己的文件描述符
		defer logWriter.Close()
		cmd.Stdout = logWriter
		cmd.Stderr = logWriter
	}

	return startDetached(cmd)
}

func (l *BackgroundLauncher) buildCommand(spec LaunchSpec) (*exec.Cmd, error) {
	args := strings.Fields(spec.Command)
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	// Survive the controller exiting / 控制器退出后子进程继续运行
	setProcGroupAttr(cmd)
	return cmd, nil
}

// ConsoleLauncher opens the server in a new console window via `start cmd /k`
// ConsoleLauncher 通过 `start cmd /k` 在新控制台窗口中运行服务器
type ConsoleLauncher struct{}

// Name implements Launcher
func (l *ConsoleLauncher) Name() string { return "console" }

// Launch implements Launcher
// Launch 实现 Launcher
func (l *ConsoleLauncher) Launch(ctx context.Context, spec LaunchSpec) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cmd, err := l.buildCommand(spec)
	if err != nil {
		return 0, err
	}
	return startDetached(cmd)
}

func (l *ConsoleLauncher) buildCommand(spec LaunchSpec) (*exec.Cmd, error) {
	command := strings.Join(strings.Fields(spec.Command), " ")
	if command == "" {
		return nil, ErrEmptyCommand
	}

	dir := spec.Dir
	if dir == "" {
		dir = "."
	}

	// The first quoted argument of start is the window title
	// start 的第一个带引号参数是窗口标题
	cmd := exec.Command("cmd", "/C", "start", spec.Title, "/D", dir, "cmd", "/k", command)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	setProcGroupAttr(cmd)
	return cmd, nil
}

// startDetached starts cmd and releases it without waiting
// startDetached 启动 cmd 并在不等待的情况下释放它
func startDetached(cmd *exec.Cmd) (int, error) {
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}

// Terminator delivers graceful termination and checks liveness per PID
// Terminator 按 PID 发送优雅终止信号并检查存活状态
type Terminator interface {
	Terminate(pid int) error
	Alive(pid int) bool
}

// SignalTerminator is the platform Terminator
// SignalTerminator 是平台相关的 Terminator
type SignalTerminator struct{}

// NewTerminator creates the platform Terminator
// NewTerminator 创建平台相关的 Terminator
func NewTerminator() *SignalTerminator {
	return &SignalTerminator{}
}
