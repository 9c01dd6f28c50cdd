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

// Package discovery scans the local process table for the managed server.
// discovery 包扫描本机进程表以查找被管理的服务器。
package discovery

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrScanFailed indicates the process table could not be read
// ErrScanFailed 表示无法读取进程表
var ErrScanFailed = errors.New("process scan failed")

// ProcessInfo is one entry of the process table
// ProcessInfo 是进程表中的一项
type ProcessInfo struct {
	PID     int    `json:"pid" yaml:"pid"`
	Name    string `json:"name" yaml:"name"`
	CmdLine string `json:"cmd_line" yaml:"cmd_line"`
}

// ProcessLister lists processes running on this machine
// ProcessLister 列出本机运行的进程
type ProcessLister interface {
	ListProcesses(ctx context.Context) ([]ProcessInfo, error)
}

// commandRunner runs an external command and returns its stdout
// commandRunner 运行外部命令并返回标准输出
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// cimScript lists processes where wmic is no longer shipped
const cimScript = "Get-CimInstance Win32_Process | Select-Object ProcessId,Name,CommandLine | ConvertTo-Csv -NoTypeInformation"

// ProcessScanner lists processes with ps on Unix, and with wmic or
// PowerShell CIM on Windows
// ProcessScanner 在 Unix 上使用 ps，在 Windows 上使用 wmic 或 PowerShell CIM 列出进程
type ProcessScanner struct {
	goos   string
	run    commandRunner
	logger *zap.Logger
}

// NewProcessScanner creates a new ProcessScanner for the current platform
// NewProcessScanner 为当前平台创建新的 ProcessScanner 实例
func NewProcessScanner(logger *zap.Logger) *ProcessScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessScanner{
		goos:   runtime.GOOS,
		run:    execRunner,
		logger: logger,
	}
}

// ListProcesses implements ProcessLister
// ListProcesses 实现 ProcessLister
func (s *ProcessScanner) ListProcesses(ctx context.Context) ([]ProcessInfo, error) {
	if s.goos == "windows" {
		return s.scanProcessesWindows(ctx)
	}
	return s.scanProcessesUnix(ctx)
}

// scanProcessesUnix reads names and command lines in two ps passes joined by PID.
// Names come from comm (the executable), command lines from args.
// scanProcessesUnix 通过两次 ps 调用按 PID 合并进程名与命令行。
func (s *ProcessScanner) scanProcessesUnix(ctx context.Context) ([]ProcessInfo, error) {
	names, err := s.runPS(ctx, "comm=")
	if err != nil {
		return nil, err
	}
	cmdlines, err := s.runPS(ctx, "args=")
	if err != nil {
		return nil, err
	}

	processes := make([]ProcessInfo, 0, len(names))
	for pid, name := range names {
		processes = append(processes, ProcessInfo{PID: pid, Name: name, CmdLine: cmdlines[pid]})
	}

	s.logger.Debug("scanned process table", zap.Int("count", len(processes)))
	return processes, nil
}

// runPS runs `ps -A -ww -o pid= -o <column>` and returns PID -> column value.
// -ww keeps long command lines whole whatever COLUMNS says.
// runPS 运行 ps 并返回 PID 到列值的映射，-ww 保证长命令行不被截断。
func (s *ProcessScanner) runPS(ctx context.Context, column string) (map[int]string, error) {
	output, err := s.run(ctx, "ps", "-A", "-ww", "-o", "pid=", "-o", column)
	if err != nil {
		// No processes found is not an error / 未找到进程不是错误
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return map[int]string{}, nil
		}
		return nil, fmt.Errorf("%w: ps: %v", ErrScanFailed, err)
	}

	result := make(map[int]string)
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		pid, value, err := parseUnixProcessLine(line)
		if err != nil {
			s.logger.Debug("skipping unparsable ps line", zap.String("line", line), zap.Error(err))
			continue
		}
		result[pid] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading ps output: %v", ErrScanFailed, err)
	}
	return result, nil
}

// parseUnixProcessLine splits "  <pid> <value...>" into its parts
// parseUnixProcessLine 将 "<pid> <值>" 拆分为两部分
func parseUnixProcessLine(line string) (int, string, error) {
	line = strings.TrimSpace(line)
	idx := strings.IndexAny(line, " \t")
	pidStr, rest := line, ""
	if idx >= 0 {
		pidStr, rest = line[:idx], strings.TrimSpace(line[idx+1:])
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse PID %q: %w", pidStr, err)
	}
	return pid, rest, nil
}

// scanProcessesWindows scans processes on Windows. wmic is tried first and
// PowerShell CIM is the fallback on releases without it.
// scanProcessesWindows 在 Windows 上扫描进程，优先使用 wmic，缺失时回退到 PowerShell CIM。
func (s *ProcessScanner) scanProcessesWindows(ctx context.Context) ([]ProcessInfo, error) {
	output, err := s.run(ctx, "wmic", "process", "get", "CommandLine,Name,ProcessId", "/format:csv")
	if err == nil {
		processes := parseWindowsCSV(string(output))
		s.logger.Debug("scanned process table", zap.String("source", "wmic"), zap.Int("count", len(processes)))
		return processes, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.logger.Debug("wmic unavailable, falling back to PowerShell", zap.Error(err))

	output, psErr := s.run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", cimScript)
	if psErr != nil {
		return nil, fmt.Errorf("%w: wmic: %v; powershell: %v", ErrScanFailed, err, psErr)
	}
	processes, err := parseCIMCSV(string(output))
	if err != nil {
		return nil, fmt.Errorf("%w: powershell output: %v", ErrScanFailed, err)
	}
	s.logger.Debug("scanned process table", zap.String("source", "powershell"), zap.Int("count", len(processes)))
	return processes, nil
}

// parseCIMCSV parses quoted ConvertTo-Csv output with the columns
// ProcessId, Name and CommandLine
// parseCIMCSV 解析 ConvertTo-Csv 输出（ProcessId、Name、CommandLine 三列）
func parseCIMCSV(output string) ([]ProcessInfo, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(output, "\ufeff")))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var processes []ProcessInfo
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 3 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			// Header row / 表头行
			continue
		}
		processes = append(processes, ProcessInfo{
			PID:     pid,
			Name:    strings.TrimSpace(record[1]),
			CmdLine: record[2],
		})
	}
	return processes, nil
}

// parseWindowsCSV parses wmic CSV output: Node,CommandLine,Name,ProcessId.
// CommandLine may itself contain commas.
// parseWindowsCSV 解析 wmic 的 CSV 输出，CommandLine 本身可能包含逗号。
func parseWindowsCSV(output string) []ProcessInfo {
	var processes []ProcessInfo
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 4 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
		if err != nil {
			// Header row / 表头行
			continue
		}
		processes = append(processes, ProcessInfo{
			PID:     pid,
			Name:    strings.TrimSpace(parts[len(parts)-2]),
			CmdLine: strings.Join(parts[1:len(parts)-2], ","),
		})
	}
	return processes
}
