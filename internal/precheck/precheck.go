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

// Package precheck verifies the prerequisites of the managed server:
// the runtime is installed, dependencies are present and the env file
// carries real API keys.
// precheck 包校验被管理服务器的前置条件：运行时已安装、依赖存在、env 文件包含真实的 API 密钥。
package precheck

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/knowledgeresearch/servermgr/internal/config"
)

// CheckStatus represents the status of a precheck item
// CheckStatus 表示预检查项的状态
type CheckStatus string

const (
	// CheckStatusPassed indicates the check passed
	// CheckStatusPassed 表示检查通过
	CheckStatusPassed CheckStatus = "passed"

	// CheckStatusFailed indicates the check failed
	// CheckStatusFailed 表示检查失败
	CheckStatusFailed CheckStatus = "failed"

	// CheckStatusWarning indicates the check passed with warnings
	// CheckStatusWarning 表示检查通过但有警告
	CheckStatusWarning CheckStatus = "warning"
)

// CheckName represents the name of a precheck item
// CheckName 表示预检查项的名称
type CheckName string

const (
	CheckNameRuntime      CheckName = "runtime"
	CheckNameDependencies CheckName = "dependencies"
	CheckNameEnvFile      CheckName = "env_file"
)

// AllCheckNames returns all check names in execution order
// AllCheckNames 按执行顺序返回所有检查名称
func AllCheckNames() []CheckName {
	return []CheckName{CheckNameRuntime, CheckNameDependencies, CheckNameEnvFile}
}

// Item is a single precheck result
// Item 表示单个预检查结果
type Item struct {
	Name    CheckName              `json:"name" yaml:"name"`
	Status  CheckStatus            `json:"status" yaml:"status"`
	Message string                 `json:"message" yaml:"message"`
	Details map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// Result contains all precheck results
// Result 包含所有预检查结果
type Result struct {
	Items []Item `json:"items" yaml:"items"`

	// OverallStatus is failed if any check failed, warning if any warned
	// OverallStatus：任一检查失败则为失败，任一警告则为警告
	OverallStatus CheckStatus `json:"overall_status" yaml:"overall_status"`

	Summary string `json:"summary" yaml:"summary"`
}

// Params contains the inputs of the checks
// Params 包含检查所需的参数
type Params struct {
	// RuntimeCommand prints the runtime version, e.g. "node --version"
	// RuntimeCommand 输出运行时版本，例如 "node --version"
	RuntimeCommand string

	// DepsDir is the dependency directory, e.g. node_modules
	// DepsDir 是依赖目录，例如 node_modules
	DepsDir string

	// EnvFile is the env file created from the template when absent
	// EnvFile 是缺失时从模板创建的 env 文件
	EnvFile string

	Secrets []config.SecretRule
}

// ParamsFromConfig resolves precheck parameters against the server work directory
// ParamsFromConfig 基于服务器工作目录解析预检查参数
func ParamsFromConfig(cfg *config.Config) *Params {
	return &Params{
		RuntimeCommand: cfg.Precheck.RuntimeCommand,
		DepsDir:        cfg.ResolvePath(cfg.Precheck.DepsDir),
		EnvFile:        cfg.ResolvePath(cfg.Precheck.EnvFile),
		Secrets:        cfg.Precheck.Secrets,
	}
}

// Environment abstracts the host for testing
// Environment 抽象宿主环境以便测试
type Environment interface {
	// RuntimeVersion runs command and returns the reported version
	// RuntimeVersion 运行命令并返回版本号
	RuntimeVersion(ctx context.Context, command string) (string, error)

	// Stat returns file info for path
	// Stat 返回 path 的文件信息
	Stat(path string) (os.FileInfo, error)
}

// DefaultEnvironment is the host Environment
// DefaultEnvironment 是宿主机的 Environment 实现
type DefaultEnvironment struct{}

// RuntimeVersion implements Environment
func (DefaultEnvironment) RuntimeVersion(ctx context.Context, command string) (string, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return "", fmt.Errorf("runtime command is empty")
	}
	output, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", args[0], err)
	}
	return parseVersion(string(output))
}

// Stat implements Environment
func (DefaultEnvironment) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// parseVersion returns the first non-empty output line, e.g. "v20.11.1"
// parseVersion 返回第一行非空输出，例如 "v20.11.1"
func parseVersion(output string) (string, error) {
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("could not parse runtime version from output")
}

// Prechecker runs the server prerequisites checks
// Prechecker 执行服务器前置条件检查
type Prechecker struct {
	params *Params
	env    Environment
}

// NewPrechecker creates a Prechecker using the host environment
// NewPrechecker 使用宿主环境创建 Prechecker
func NewPrechecker(params *Params) *Prechecker {
	return NewPrecheckerWithEnvironment(params, DefaultEnvironment{})
}

// NewPrecheckerWithEnvironment creates a Prechecker with a custom Environment
// NewPrecheckerWithEnvironment 使用自定义 Environment 创建 Prechecker
func NewPrecheckerWithEnvironment(params *Params, env Environment) *Prechecker {
	if params == nil {
		params = &Params{
			RuntimeCommand: config.DefaultRuntimeCommand,
			DepsDir:        config.DefaultDepsDir,
			EnvFile:        config.DefaultEnvFile,
			Secrets:        config.DefaultSecrets(),
		}
	}
	return &Prechecker{params: params, env: env}
}

// RunAll executes all prechecks in order and aggregates the results
// RunAll 按顺序执行所有预检查并汇总结果
func (p *Prechecker) RunAll(ctx context.Context) (*Result, error) {
	result := &Result{
		Items:         make([]Item, 0, 3),
		OverallStatus: CheckStatusPassed,
	}

	checks := map[CheckName]func(context.Context) Item{
		CheckNameRuntime:      p.CheckRuntime,
		CheckNameDependencies: p.CheckDependencies,
		CheckNameEnvFile:      p.CheckEnvFile,
	}

	passed, failed, warnings := 0, 0, 0
	for _, name := range AllCheckNames() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := checks[name](ctx)
		result.Items = append(result.Items, item)

		switch item.Status {
		case CheckStatusPassed:
			passed++
		case CheckStatusFailed:
			failed++
			result.OverallStatus = CheckStatusFailed
		case CheckStatusWarning:
			warnings++
			if result.OverallStatus == CheckStatusPassed {
				result.OverallStatus = CheckStatusWarning
			}
		}
	}

	result.Summary = fmt.Sprintf(
		"Precheck completed: %d passed, %d failed, %d warnings / 预检查完成：%d 通过，%d 失败，%d 警告",
		passed, failed, warnings,
		passed, failed, warnings,
	)
	return result, nil
}

// CheckRuntime checks that the runtime is installed
// CheckRuntime 检查运行时是否已安装
func (p *Prechecker) CheckRuntime(ctx context.Context) Item {
	item := Item{
		Name:    CheckNameRuntime,
		Details: map[string]interface{}{"command": p.params.RuntimeCommand},
	}

	version, err := p.env.RuntimeVersion(ctx, p.params.RuntimeCommand)
	if err != nil {
		item.Status = CheckStatusFailed
		item.Message = "Node.js is not installed. Please install it first. / Node.js 未安装，请先安装。"
		item.Details["error"] = err.Error()
		return item
	}

	item.Status = CheckStatusPassed
	item.Message = fmt.Sprintf("Node.js is installed: %s / Node.js 已安装：%s", version, version)
	item.Details["version"] = version
	return item
}

// CheckDependencies checks that the dependency directory exists.
// Installing dependencies is left to the operator.
// CheckDependencies 检查依赖目录是否存在，依赖安装由操作者完成。
func (p *Prechecker) CheckDependencies(ctx context.Context) Item {
	item := Item{
		Name:    CheckNameDependencies,
		Details: map[string]interface{}{"path": p.params.DepsDir},
	}

	info, err := p.env.Stat(p.params.DepsDir)
	switch {
	case os.IsNotExist(err):
		item.Status = CheckStatusFailed
		item.Message = fmt.Sprintf(
			"Dependencies not installed (%s missing). Run `npm install` first. / 依赖未安装（缺少 %s），请先运行 `npm install`。",
			p.params.DepsDir, p.params.DepsDir,
		)
	case err != nil:
		item.Status = CheckStatusFailed
		item.Message = fmt.Sprintf("Failed to check %s: %v / 检查 %s 失败：%v", p.params.DepsDir, err, p.params.DepsDir, err)
	case !info.IsDir():
		item.Status = CheckStatusFailed
		item.Message = fmt.Sprintf("%s is not a directory / %s 不是目录", p.params.DepsDir, p.params.DepsDir)
	default:
		item.Status = CheckStatusPassed
		item.Message = "Dependencies are installed / 依赖已安装"
	}
	return item
}

// CheckEnvFile creates the env file from the template when absent and
// inspects the configured API keys otherwise
// CheckEnvFile 在 env 文件缺失时从模板创建，否则检查配置的 API 密钥
func (p *Prechecker) CheckEnvFile(ctx context.Context) Item {
	item := Item{
		Name:    CheckNameEnvFile,
		Details: map[string]interface{}{"path": p.params.EnvFile},
	}

	created, err := EnsureEnvFile(p.params.EnvFile)
	if err != nil {
		item.Status = CheckStatusFailed
		item.Message = fmt.Sprintf("Failed to create %s: %v / 创建 %s 失败：%v", p.params.EnvFile, err, p.params.EnvFile, err)
		return item
	}
	if created {
		item.Status = CheckStatusWarning
		item.Message = fmt.Sprintf(
			".env file not found, created %s from template. Please update it with your actual API keys. / 未找到 .env 文件，已从模板创建 %s，请填写真实的 API 密钥。",
			p.params.EnvFile, p.params.EnvFile,
		)
		item.Details["created"] = true
		item.Details["expected_prefixes"] = expectedPrefixes(p.params.Secrets)
		return item
	}

	issues, err := InspectEnvFile(p.params.EnvFile, p.params.Secrets)
	if err != nil {
		item.Status = CheckStatusFailed
		item.Message = fmt.Sprintf("Failed to read %s: %v / 读取 %s 失败：%v", p.params.EnvFile, err, p.params.EnvFile, err)
		return item
	}
	if len(issues) > 0 {
		keys := make([]string, 0, len(issues))
		for _, issue := range issues {
			keys = append(keys, issue.Key)
		}
		item.Status = CheckStatusWarning
		item.Message = fmt.Sprintf(
			"API keys need to be updated in .env file: %s / .env 文件中的 API 密钥需要更新：%s",
			strings.Join(keys, ", "), strings.Join(keys, ", "),
		)
		item.Details["issues"] = issues
		item.Details["expected_prefixes"] = expectedPrefixes(p.params.Secrets)
		return item
	}

	item.Status = CheckStatusPassed
	item.Message = ".env file exists / .env 文件已存在"
	return item
}

func expectedPrefixes(rules []config.SecretRule) map[string]string {
	prefixes := make(map[string]string, len(rules))
	for _, rule := range rules {
		prefixes[rule.Key] = rule.Prefix
	}
	return prefixes
}

// ToJSON converts the precheck result to JSON string
// ToJSON 将预检查结果转换为 JSON 字符串
func (r *Result) ToJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetCheck returns the check item with the given name, or nil if not found
// GetCheck 返回给定名称的检查项，如果未找到则返回 nil
func (r *Result) GetCheck(name CheckName) *Item {
	for i := range r.Items {
		if r.Items[i].Name == name {
			return &r.Items[i]
		}
	}
	return nil
}

// Failed reports whether any check failed
func (r *Result) Failed() bool {
	return r.OverallStatus == CheckStatusFailed
}
