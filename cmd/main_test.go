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

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/knowledgeresearch/servermgr/internal/audit"
	"github.com/knowledgeresearch/servermgr/internal/config"
	"github.com/knowledgeresearch/servermgr/internal/controller"
	"github.com/knowledgeresearch/servermgr/internal/precheck"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default between executions
// resetFlags 在两次执行之间将所有标志恢复为默认值
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// executeCommand runs the CLI with args against an isolated config path
// executeCommand 使用隔离的配置路径运行 CLI
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvPrefix+"_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// TestRootCommand tests the root command
// TestRootCommand 测试根命令
func TestRootCommand(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "servermgr", rootCmd.Use)

	names := make([]string, 0)
	for _, sub := range rootCmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"start", "stop", "restart", "status", "check", "history", "config", "version"} {
		assert.Contains(t, names, want)
	}
}

// TestVersionCommand tests the version command
// TestVersionCommand 测试版本命令
func TestVersionCommand(t *testing.T) {
	assert.Equal(t, "version", versionCmd.Use)

	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
}

// TestCaseInsensitiveCommand tests that subcommands ignore case
// TestCaseInsensitiveCommand 测试子命令不区分大小写
func TestCaseInsensitiveCommand(t *testing.T) {
	out, err := executeCommand(t, "VERSION")
	require.NoError(t, err)
	assert.Contains(t, out, "Git Commit:")
}

// TestUnknownCommandPrintsHelp tests that unknown input prints help without failing
// TestUnknownCommandPrintsHelp 测试未知输入打印帮助且不报错
func TestUnknownCommandPrintsHelp(t *testing.T) {
	out, err := executeCommand(t, "bogus")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "========"))
	assert.Less(t, strings.Index(out, "Server Manager"), strings.Index(out, "Unknown command: bogus"))
	assert.Less(t, strings.Index(out, "Unknown command: bogus"), strings.Index(out, "Available Commands:"))
	assert.Equal(t, 1, strings.Count(out, "Knowledge Research Assistant - Server Manager\n========"))
}

// TestNoArgsPrintsHelp tests that a bare invocation prints help
// TestNoArgsPrintsHelp 测试无参数时打印帮助
func TestNoArgsPrintsHelp(t *testing.T) {
	out, err := executeCommand(t)
	require.NoError(t, err)
	assert.NotContains(t, out, "Unknown command")
	assert.Contains(t, out, "Usage:")
	assert.True(t, strings.HasPrefix(out, "========"))
}

// TestHelpCommandPrintsBanner tests that help starts with the banner
// TestHelpCommandPrintsBanner 测试帮助以横幅开头
func TestHelpCommandPrintsBanner(t *testing.T) {
	for _, args := range [][]string{{"help"}, {"--help"}, {"help", "stop"}} {
		out, err := executeCommand(t, args...)
		require.NoError(t, err, args)
		assert.True(t, strings.HasPrefix(out, "========"), args)
		assert.Contains(t, out, "Knowledge Research Assistant - Server Manager", args)
		assert.Contains(t, out, "Usage:", args)
	}
}

// TestConfigCommand tests flag overrides in the printed configuration
// TestConfigCommand 测试打印配置中的标志覆盖
func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := executeCommand(t, "config", "--port", "4000", "--work-dir", dir)
	require.NoError(t, err)

	cfg, err := config.LoadFromYAML([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, dir, cfg.Server.WorkDir)
}

// TestConfigCommandInvalidPort tests that validation errors surface
// TestConfigCommandInvalidPort 测试校验错误会返回
func TestConfigCommandInvalidPort(t *testing.T) {
	_, err := executeCommand(t, "config", "--port", "70000")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

// TestCheckCommandFails tests the check command in an empty project
// TestCheckCommandFails 测试在空项目中执行检查命令
func TestCheckCommandFails(t *testing.T) {
	dir := t.TempDir()
	out, err := executeCommand(t, "check", "--work-dir", dir, "-o", "json")
	assert.ErrorIs(t, err, controller.ErrPrecheckFailed)
	assert.Contains(t, out, `"name": "dependencies"`)
	assert.FileExists(t, filepath.Join(dir, ".env"))
}

// TestStatusRejectsUnknownFormat tests output format validation
// TestStatusRejectsUnknownFormat 测试输出格式校验
func TestStatusRejectsUnknownFormat(t *testing.T) {
	_, err := executeCommand(t, "status", "-o", "xml")
	assert.ErrorContains(t, err, "unsupported output format")
}

// TestHistoryCommand tests listing seeded operation records
// TestHistoryCommand 测试列出预置的操作记录
func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := executeCommand(t, "history", "--work-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No operations recorded")

	db, err := audit.Open(config.AuditConfig{
		Enabled:    true,
		Type:       config.AuditTypeSQLite,
		SQLitePath: filepath.Join(dir, config.DefaultAuditSQLite),
	}, nil)
	require.NoError(t, err)
	repo := audit.NewRepository(db)
	started := time.Now()
	for _, rec := range []*audit.OperationRecord{
		{OperationID: "op-start", Operation: "start", Outcome: "started", PIDs: audit.PIDList{4100}, StartedAt: started, FinishedAt: started, DurationMs: 2100},
		{OperationID: "op-stop", Operation: "stop", Outcome: "stopped", PIDs: audit.PIDList{4100}, StartedAt: started.Add(time.Minute), FinishedAt: started.Add(time.Minute)},
	} {
		require.NoError(t, repo.Create(context.Background(), rec))
	}
	require.NoError(t, audit.Close(db))

	out, err = executeCommand(t, "history", "--work-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "op-start")
	assert.Contains(t, out, "op-stop")
	assert.Contains(t, out, "Showing 2 of 2")

	out, err = executeCommand(t, "history", "--work-dir", dir, "--operation", "start", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"operation_id": "op-start"`)
	assert.NotContains(t, out, "op-stop")
}

// TestExitCode tests the mapping from errors to exit codes
// TestExitCode 测试错误到退出码的映射
func TestExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, exitCode(context.Background(), nil, &stdout, &stderr))

	assert.Equal(t, 1, exitCode(context.Background(), errors.New("boom"), &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Error: boom")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stdout.Reset()
	assert.Equal(t, 0, exitCode(ctx, context.Canceled, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Interrupted by user")
}

// TestRender tests the output formats
// TestRender 测试输出格式
func TestRender(t *testing.T) {
	v := map[string]interface{}{"outcome": "running", "pids": []int{1, 2}}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, outputJSON, v, nil))
	assert.Contains(t, buf.String(), `"outcome": "running"`)

	buf.Reset()
	require.NoError(t, render(&buf, outputYAML, v, nil))
	assert.Contains(t, buf.String(), "outcome: running")

	buf.Reset()
	require.NoError(t, render(&buf, outputText, v, nil))
	assert.Empty(t, buf.String())

	require.NoError(t, render(&buf, outputText, v, func(w io.Writer) error {
		_, err := io.WriteString(w, "Server is running")
		return err
	}))
	assert.Equal(t, "Server is running", buf.String())

	assert.Error(t, render(&buf, "xml", v, nil))
}

// TestRenderPrecheckJSON tests that precheck results render through their own JSON form
// TestRenderPrecheckJSON 测试预检查结果通过自身的 JSON 形式渲染
func TestRenderPrecheckJSON(t *testing.T) {
	result := &precheck.Result{
		OverallStatus: precheck.CheckStatusPassed,
		Items: []precheck.Item{
			{Name: precheck.CheckNameRuntime, Status: precheck.CheckStatusPassed, Message: "ok"},
		},
	}
	want, err := result.ToJSON()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, render(&buf, outputJSON, result, nil))
	assert.Equal(t, want+"\n", buf.String())
}

// TestFormatPrecheckResult tests the text form of a precheck result
// TestFormatPrecheckResult 测试预检查结果的文本形式
func TestFormatPrecheckResult(t *testing.T) {
	text := formatPrecheckResult(&precheck.Result{
		OverallStatus: precheck.CheckStatusWarning,
		Items: []precheck.Item{
			{Name: precheck.CheckNameRuntime, Status: precheck.CheckStatusPassed, Message: "Node.js is installed: v20.11.1"},
			{Name: precheck.CheckNameEnvFile, Status: precheck.CheckStatusWarning, Message: "API keys need to be updated"},
		},
	})
	assert.Contains(t, text, "✓ runtime: Node.js is installed: v20.11.1")
	assert.Contains(t, text, "⚠ env_file: API keys need to be updated")
	assert.Contains(t, text, "PASSED WITH WARNINGS")
}
