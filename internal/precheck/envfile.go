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

package precheck

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knowledgeresearch/servermgr/internal/config"
	"github.com/spf13/viper"
)

// EnvTemplate is written when the env file does not exist
// EnvTemplate 在 env 文件不存在时写入
const EnvTemplate = `# Get your API keys from:
# Anthropic: https://console.anthropic.com/account/keys
# Perplexity: https://www.perplexity.ai/settings/api

CLAUDE_API_KEY=YOUR_ANTHROPIC_API_KEY_HERE
PERPLEXITY_API_KEY=YOUR_PERPLEXITY_API_KEY_HERE
PORT=3000
`

// PlaceholderMarker marks template values that were never replaced
// PlaceholderMarker 标记未被替换的模板值
const PlaceholderMarker = "YOUR_"

// IssueKind describes what is wrong with a secret
// IssueKind 描述密钥存在的问题
type IssueKind string

const (
	IssueMissing     IssueKind = "missing"
	IssuePlaceholder IssueKind = "placeholder"
	IssueWrongPrefix IssueKind = "wrong_prefix"
)

// SecretIssue reports one secret that needs attention
// SecretIssue 报告一个需要处理的密钥
type SecretIssue struct {
	Key            string    `json:"key" yaml:"key"`
	Kind           IssueKind `json:"kind" yaml:"kind"`
	ExpectedPrefix string    `json:"expected_prefix,omitempty" yaml:"expected_prefix,omitempty"`
}

// EnsureEnvFile writes EnvTemplate to path when it does not exist.
// An existing file is never overwritten.
// EnsureEnvFile 在 path 不存在时写入模板，已存在的文件不会被覆盖。
func EnsureEnvFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if _, err := f.WriteString(EnvTemplate); err != nil {
		return false, err
	}
	return true, nil
}

// InspectEnvFile parses the dotenv file at path and checks every rule:
// the key must be set, must not be a template placeholder and must carry
// the expected prefix.
// InspectEnvFile 解析 path 处的 dotenv 文件并逐条检查：密钥必须存在、不能是模板占位符、且须带有期望前缀。
func InspectEnvFile(path string, rules []config.SecretRule) ([]SecretIssue, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to parse env file: %w", err)
	}

	var issues []SecretIssue
	for _, rule := range rules {
		value := strings.TrimSpace(v.GetString(rule.Key))
		switch {
		case value == "":
			issues = append(issues, SecretIssue{Key: rule.Key, Kind: IssueMissing, ExpectedPrefix: rule.Prefix})
		case strings.Contains(value, PlaceholderMarker):
			issues = append(issues, SecretIssue{Key: rule.Key, Kind: IssuePlaceholder, ExpectedPrefix: rule.Prefix})
		case rule.Prefix != "" && !strings.HasPrefix(value, rule.Prefix):
			issues = append(issues, SecretIssue{Key: rule.Key, Kind: IssueWrongPrefix, ExpectedPrefix: rule.Prefix})
		}
	}
	return issues, nil
}
