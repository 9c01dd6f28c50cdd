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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfig tests configuration loading
// TestLoadConfig 测试配置加载
func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "servermgr.yaml")

	configContent := `
server:
  host: 127.0.0.1
  port: 8080
  probe_path: /healthz
  probe_timeout: 3s
  work_dir: /srv/research

process:
  runtime: node
  entry_point: app.js
  launch_command: npm run serve
  launch_log: logs/server.log

timing:
  poll_interval: 500ms
  poll_attempts: 20
  stop_wait: 2s
  restart_pause: 4s

precheck:
  env_file: config/.env
  secrets:
    - key: OPENAI_API_KEY
      prefix: sk-

log:
  level: debug
  file: /tmp/servermgr.log
  max_size: 50
  max_backups: 5
  max_age: 14

audit:
  enabled: false
  type: postgres
  dsn: postgres://localhost/servermgr
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/healthz", cfg.Server.ProbePath)
	assert.Equal(t, 3*time.Second, cfg.Server.ProbeTimeout)
	assert.Equal(t, "/srv/research", cfg.Server.WorkDir)
	assert.Equal(t, "app.js", cfg.Process.EntryPoint)
	assert.Equal(t, "npm run serve", cfg.Process.LaunchCommand)
	assert.Equal(t, "logs/server.log", cfg.Process.LaunchLog)
	assert.Equal(t, 500*time.Millisecond, cfg.Timing.PollInterval)
	assert.Equal(t, 20, cfg.Timing.PollAttempts)
	assert.Equal(t, 2*time.Second, cfg.Timing.StopWait)
	assert.Equal(t, 4*time.Second, cfg.Timing.RestartPause)
	assert.Equal(t, "config/.env", cfg.Precheck.EnvFile)
	assert.Equal(t, []SecretRule{{Key: "OPENAI_API_KEY", Prefix: "sk-"}}, cfg.Precheck.Secrets)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 50, cfg.Log.MaxSize)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, AuditTypePostgres, cfg.Audit.Type)
	assert.NoError(t, cfg.Validate())
}

// TestLoadConfigDefaults tests default configuration values when the file is missing
// TestLoadConfigDefaults 测试配置文件缺失时的默认值
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultProbePath, cfg.Server.ProbePath)
	assert.Equal(t, DefaultProbeTimeout, cfg.Server.ProbeTimeout)
	assert.Equal(t, DefaultRuntime, cfg.Process.Runtime)
	assert.Equal(t, DefaultEntryPoint, cfg.Process.EntryPoint)
	assert.Equal(t, DefaultLaunchCommand, cfg.Process.LaunchCommand)
	assert.Equal(t, DefaultPollInterval, cfg.Timing.PollInterval)
	assert.Equal(t, DefaultPollAttempts, cfg.Timing.PollAttempts)
	assert.Equal(t, DefaultStopWait, cfg.Timing.StopWait)
	assert.Equal(t, DefaultRestartPause, cfg.Timing.RestartPause)
	assert.Equal(t, DefaultSecrets(), cfg.Precheck.Secrets)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, AuditTypeSQLite, cfg.Audit.Type)
	assert.Equal(t, "http://localhost:3000/api/load-files", cfg.ProbeURL())
	assert.Equal(t, "http://localhost:3000", cfg.AccessURL())
	assert.NoError(t, cfg.Validate())
}

// TestURLsWithIPv6Host tests that IPv6 hosts are bracketed
// TestURLsWithIPv6Host 测试 IPv6 主机会加上方括号
func TestURLsWithIPv6Host(t *testing.T) {
	cfg, err := LoadFromYAML([]byte("server:\n  host: \"::1\"\n  port: 3000\n"))
	require.NoError(t, err)

	assert.Equal(t, "http://[::1]:3000/api/load-files", cfg.ProbeURL())
	assert.Equal(t, "http://[::1]:3000", cfg.AccessURL())

	cfg.Server.Host = "127.0.0.1"
	assert.Equal(t, "http://127.0.0.1:3000", cfg.AccessURL())
}

// TestLoadConfigEnvOverride tests environment variable overrides
// TestLoadConfigEnvOverride 测试环境变量覆盖
func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("SERVERMGR_SERVER_PORT", "4100")
	t.Setenv("SERVERMGR_PROCESS_ENTRY_POINT", "index.js")
	t.Setenv("SERVERMGR_TIMING_POLL_ATTEMPTS", "3")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 4100, cfg.Server.Port)
	assert.Equal(t, "index.js", cfg.Process.EntryPoint)
	assert.Equal(t, 3, cfg.Timing.PollAttempts)
}

// TestLoadConfigInvalidFile tests that a malformed file is reported
// TestLoadConfigInvalidFile 测试格式错误的配置文件会报错
func TestLoadConfigInvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "servermgr.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

// TestValidate tests configuration validation
// TestValidate 测试配置验证
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"probe path without slash", func(c *Config) { c.Server.ProbePath = "api/load-files" }},
		{"zero probe timeout", func(c *Config) { c.Server.ProbeTimeout = 0 }},
		{"empty runtime", func(c *Config) { c.Process.Runtime = " " }},
		{"empty entry point", func(c *Config) { c.Process.EntryPoint = "" }},
		{"empty launch command", func(c *Config) { c.Process.LaunchCommand = "   " }},
		{"no poll attempts", func(c *Config) { c.Timing.PollAttempts = 0 }},
		{"zero stop wait", func(c *Config) { c.Timing.StopWait = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"unknown audit type", func(c *Config) { c.Audit.Type = "clickhouse" }},
		{"mysql without dsn", func(c *Config) { c.Audit.Type = AuditTypeMySQL; c.Audit.DSN = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromYAML(nil)
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

// TestResolvePath tests path resolution against the work directory
// TestResolvePath 测试基于工作目录的路径解析
func TestResolvePath(t *testing.T) {
	cfg := &Config{Server: ServerConfig{WorkDir: "/srv/app"}}

	assert.Equal(t, filepath.Join("/srv/app", ".env"), cfg.ResolvePath(".env"))
	assert.Equal(t, "", cfg.ResolvePath(""))

	abs := filepath.Join(t.TempDir(), "x.db")
	assert.Equal(t, abs, cfg.ResolvePath(abs))
}

// TestToYAML tests that the effective configuration renders as YAML
// TestToYAML 测试有效配置可渲染为 YAML
func TestToYAML(t *testing.T) {
	cfg, err := LoadFromYAML(nil)
	require.NoError(t, err)

	data, err := cfg.ToYAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "probe_path: /api/load-files")
	assert.Contains(t, string(data), "poll_interval: 1s")
	assert.Contains(t, string(data), "key: CLAUDE_API_KEY")
}

// TestExampleConfigMatchesDefaults tests that the shipped example mirrors the defaults
// TestExampleConfigMatchesDefaults 测试示例配置与默认值一致
func TestExampleConfigMatchesDefaults(t *testing.T) {
	example, err := Load(filepath.Join("..", "..", "servermgr.example.yaml"))
	require.NoError(t, err)
	require.NoError(t, example.Validate())

	defaults, err := LoadFromYAML(nil)
	require.NoError(t, err)

	assert.Equal(t, defaults, example)
}
