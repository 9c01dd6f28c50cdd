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

// Package config provides configuration management for servermgr.
// config 包提供 servermgr 的配置管理功能。
//
// Configuration loading priority (highest to lowest):
// 配置加载优先级（从高到低）：
// 1. Command line flags / 命令行参数
// 2. Environment variables (SERVERMGR_*) / 环境变量
// 3. Configuration file / 配置文件
// 4. Default values / 默认值
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Default configuration values
// 默认配置值
const (
	DefaultConfigPath     = "servermgr.yaml"
	DefaultHost           = "localhost"
	DefaultPort           = 3000
	DefaultProbePath      = "/api/load-files"
	DefaultProbeTimeout   = 2 * time.Second
	DefaultWorkDir        = "."
	DefaultRuntime        = "node"
	DefaultEntryPoint     = "server.js"
	DefaultLaunchCommand  = "npm start"
	DefaultWindowTitle    = "Knowledge Research Server"
	DefaultPollInterval   = time.Second
	DefaultPollAttempts   = 10
	DefaultStopWait       = time.Second
	DefaultRestartPause   = 2 * time.Second
	DefaultRuntimeCommand = "node --version"
	DefaultDepsDir        = "node_modules"
	DefaultEnvFile        = ".env"
	DefaultLogLevel       = "info"
	DefaultLogFile        = ".servermgr/servermgr.log"
	DefaultLogMaxSize     = 10 // MB
	DefaultLogMaxBackups  = 3
	DefaultLogMaxAge      = 7 // days
	DefaultAuditType      = AuditTypeSQLite
	DefaultAuditSQLite    = ".servermgr/history.db"

	// EnvPrefix is the prefix for environment variable overrides
	// EnvPrefix 是环境变量覆盖的前缀
	EnvPrefix = "SERVERMGR"
)

// Supported audit store types
// 支持的审计存储类型
const (
	AuditTypeSQLite   = "sqlite"
	AuditTypeMySQL    = "mysql"
	AuditTypePostgres = "postgres"
)

// ErrInvalidConfig is wrapped by every validation failure
// ErrInvalidConfig 包装所有校验失败
var ErrInvalidConfig = errors.New("invalid config")

// Config represents the servermgr configuration
// Config 表示 servermgr 配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Process  ProcessConfig  `mapstructure:"process" yaml:"process"`
	Timing   TimingConfig   `mapstructure:"timing" yaml:"timing"`
	Precheck PrecheckConfig `mapstructure:"precheck" yaml:"precheck"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`
}

// ServerConfig describes the managed server and its liveness endpoint
// ServerConfig 描述被管理的服务器及其存活探测端点
type ServerConfig struct {
	// Host is the host the liveness probe connects to
	// Host 是存活探测连接的主机
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the port the server listens on
	// Port 是服务器监听的端口
	Port int `mapstructure:"port" yaml:"port"`

	// ProbePath is the HTTP path answered with 200 when the server is up
	// ProbePath 是服务器就绪时返回 200 的 HTTP 路径
	ProbePath string `mapstructure:"probe_path" yaml:"probe_path"`

	// ProbeTimeout bounds a single probe request
	// ProbeTimeout 限制单次探测请求的时长
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`

	// WorkDir is the server project directory; relative paths resolve against it
	// WorkDir 是服务器项目目录，相对路径基于它解析
	WorkDir string `mapstructure:"work_dir" yaml:"work_dir"`
}

// ProcessConfig describes how the server process is found and launched
// ProcessConfig 描述如何查找和启动服务器进程
type ProcessConfig struct {
	// Runtime is matched case-insensitively against the process name
	// Runtime 与进程名进行大小写不敏感匹配
	Runtime string `mapstructure:"runtime" yaml:"runtime"`

	// EntryPoint must appear in the process command line
	// EntryPoint 必须出现在进程命令行中
	EntryPoint string `mapstructure:"entry_point" yaml:"entry_point"`

	// LaunchCommand is split on whitespace and executed in WorkDir
	// LaunchCommand 按空白分割后在 WorkDir 中执行
	LaunchCommand string `mapstructure:"launch_command" yaml:"launch_command"`

	// LaunchLog receives server output when set; output is discarded otherwise
	// LaunchLog 设置后接收服务器输出，否则输出被丢弃
	LaunchLog string `mapstructure:"launch_log" yaml:"launch_log"`

	// WindowTitle is the console title used on Windows
	// WindowTitle 是 Windows 上使用的控制台标题
	WindowTitle string `mapstructure:"window_title" yaml:"window_title"`
}

// TimingConfig holds the polling and pause intervals
// TimingConfig 保存轮询和暂停间隔
type TimingConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PollAttempts int           `mapstructure:"poll_attempts" yaml:"poll_attempts"`
	StopWait     time.Duration `mapstructure:"stop_wait" yaml:"stop_wait"`
	RestartPause time.Duration `mapstructure:"restart_pause" yaml:"restart_pause"`
}

// SecretRule describes one API key expected in the env file
// SecretRule 描述 env 文件中期望的一个 API 密钥
type SecretRule struct {
	Key    string `mapstructure:"key" yaml:"key"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// PrecheckConfig contains prerequisite check settings
// PrecheckConfig 包含前置检查设置
type PrecheckConfig struct {
	RuntimeCommand string       `mapstructure:"runtime_command" yaml:"runtime_command"`
	DepsDir        string       `mapstructure:"deps_dir" yaml:"deps_dir"`
	EnvFile        string       `mapstructure:"env_file" yaml:"env_file"`
	Secrets        []SecretRule `mapstructure:"secrets" yaml:"secrets"`
}

// LogConfig contains logging settings
// LogConfig 包含日志设置
type LogConfig struct {
	// Level is the log level (debug, info, warn, error)
	// Level 是日志级别（debug, info, warn, error）
	Level string `mapstructure:"level" yaml:"level"`

	// File is the log file path; empty disables file logging
	// File 是日志文件路径，为空时禁用文件日志
	File string `mapstructure:"file" yaml:"file"`

	// Console mirrors log entries to stderr
	// Console 将日志同时输出到标准错误
	Console bool `mapstructure:"console" yaml:"console"`

	MaxSize    int `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int `mapstructure:"max_age" yaml:"max_age"`
}

// AuditConfig contains operation history store settings
// AuditConfig 包含操作历史存储设置
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Type       string `mapstructure:"type" yaml:"type"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	DSN        string `mapstructure:"dsn" yaml:"dsn"`
}

// DefaultSecrets returns the API keys checked in the env file by default
// DefaultSecrets 返回默认检查的 API 密钥
func DefaultSecrets() []SecretRule {
	return []SecretRule{
		{Key: "CLAUDE_API_KEY", Prefix: "sk-ant-api03-"},
		{Key: "PERPLEXITY_API_KEY", Prefix: "pplx-"},
	}
}

// Load loads configuration from file and environment variables
// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values / 设置默认值
	setDefaults(v)

	// Set config file path / 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if envPath := os.Getenv(EnvPrefix + "_CONFIG_PATH"); envPath != "" {
		v.SetConfigFile(envPath)
	} else {
		v.SetConfigFile(DefaultConfigPath)
	}

	// Enable environment variable override / 启用环境变量覆盖
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file / 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// A missing file falls back to defaults / 文件不存在时使用默认值
			if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return unmarshal(v)
}

// LoadFromYAML parses configuration from YAML bytes on top of the defaults
// LoadFromYAML 在默认值之上从 YAML 字节解析配置
func LoadFromYAML(data []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Precheck.Secrets) == 0 {
		cfg.Precheck.Secrets = DefaultSecrets()
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// Server defaults / 服务器默认值
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.probe_path", DefaultProbePath)
	v.SetDefault("server.probe_timeout", DefaultProbeTimeout)
	v.SetDefault("server.work_dir", DefaultWorkDir)

	// Process defaults / 进程默认值
	v.SetDefault("process.runtime", DefaultRuntime)
	v.SetDefault("process.entry_point", DefaultEntryPoint)
	v.SetDefault("process.launch_command", DefaultLaunchCommand)
	v.SetDefault("process.launch_log", "")
	v.SetDefault("process.window_title", DefaultWindowTitle)

	// Timing defaults / 时间默认值
	v.SetDefault("timing.poll_interval", DefaultPollInterval)
	v.SetDefault("timing.poll_attempts", DefaultPollAttempts)
	v.SetDefault("timing.stop_wait", DefaultStopWait)
	v.SetDefault("timing.restart_pause", DefaultRestartPause)

	// Precheck defaults / 前置检查默认值
	v.SetDefault("precheck.runtime_command", DefaultRuntimeCommand)
	v.SetDefault("precheck.deps_dir", DefaultDepsDir)
	v.SetDefault("precheck.env_file", DefaultEnvFile)

	// Log defaults / 日志默认值
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", DefaultLogFile)
	v.SetDefault("log.console", false)
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)

	// Audit defaults / 审计默认值
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.type", DefaultAuditType)
	v.SetDefault("audit.sqlite_path", DefaultAuditSQLite)
	v.SetDefault("audit.dsn", "")
}

// Validate validates the configuration
// Validate 验证配置
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range 1-65535", ErrInvalidConfig, c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.ProbePath, "/") {
		return fmt.Errorf("%w: server.probe_path must start with /", ErrInvalidConfig)
	}
	if c.Server.ProbeTimeout <= 0 {
		return fmt.Errorf("%w: server.probe_timeout must be positive", ErrInvalidConfig)
	}

	if strings.TrimSpace(c.Process.Runtime) == "" {
		return fmt.Errorf("%w: process.runtime is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Process.EntryPoint) == "" {
		return fmt.Errorf("%w: process.entry_point is required", ErrInvalidConfig)
	}
	if len(strings.Fields(c.Process.LaunchCommand)) == 0 {
		return fmt.Errorf("%w: process.launch_command is required", ErrInvalidConfig)
	}

	if c.Timing.PollAttempts < 1 {
		return fmt.Errorf("%w: timing.poll_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Timing.PollInterval <= 0 || c.Timing.StopWait <= 0 || c.Timing.RestartPause <= 0 {
		return fmt.Errorf("%w: timing intervals must be positive", ErrInvalidConfig)
	}

	// Validate log level / 验证日志级别
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug, info, warn, or error)", ErrInvalidConfig, c.Log.Level)
	}

	// Validate audit store / 验证审计存储
	switch c.Audit.Type {
	case AuditTypeSQLite:
		if c.Audit.Enabled && c.Audit.SQLitePath == "" {
			return fmt.Errorf("%w: audit.sqlite_path is required for sqlite", ErrInvalidConfig)
		}
	case AuditTypeMySQL, AuditTypePostgres:
		if c.Audit.Enabled && c.Audit.DSN == "" {
			return fmt.Errorf("%w: audit.dsn is required for %s", ErrInvalidConfig, c.Audit.Type)
		}
	default:
		return fmt.Errorf("%w: unsupported audit.type %q (sqlite, mysql, postgres)", ErrInvalidConfig, c.Audit.Type)
	}

	return nil
}

// ProbeURL returns the liveness probe URL
// ProbeURL 返回存活探测 URL
func (c *Config) ProbeURL() string {
	return c.AccessURL() + c.Server.ProbePath
}

// AccessURL returns the URL operators open in a browser
// AccessURL 返回操作者在浏览器中打开的 URL
func (c *Config) AccessURL() string {
	return "http://" + net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ResolvePath resolves p against the server work directory
// ResolvePath 基于服务器工作目录解析路径
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Server.WorkDir, p)
}

// String returns a string representation of the config (for debugging)
// String 返回配置的字符串表示（用于调试）
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Probe: %s, Runtime: %s, EntryPoint: %s, Launch: %q, Log.Level: %s, Audit: %s}",
		c.ProbeURL(),
		c.Process.Runtime,
		c.Process.EntryPoint,
		c.Process.LaunchCommand,
		c.Log.Level,
		c.Audit.Type,
	)
}

// ToYAML serializes the configuration to YAML format
// ToYAML 将配置序列化为 YAML 格式
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
