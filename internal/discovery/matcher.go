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

package discovery

import (
	"context"
	"os"
	"sort"
	"strings"
)

// Matcher identifies server processes by runtime name and entry point
// Matcher 通过运行时名称和入口文件识别服务器进程
type Matcher struct {
	// Runtime must appear in the executable name, case-insensitively
	// Runtime 必须出现在可执行文件名中（不区分大小写）
	Runtime string

	// EntryPoint must appear in the command line
	// EntryPoint 必须出现在命令行中
	EntryPoint string
}

// Match reports whether p is a server process
// Match 判断 p 是否为服务器进程
func (m Matcher) Match(p ProcessInfo) bool {
	if m.Runtime == "" || m.EntryPoint == "" {
		return false
	}
	name := strings.ToLower(baseName(p.Name))
	if !strings.Contains(name, strings.ToLower(m.Runtime)) {
		return false
	}
	return strings.Contains(p.CmdLine, m.EntryPoint)
}

// baseName strips a Unix or Windows directory prefix
func baseName(name string) string {
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// FindPIDs returns the sorted PIDs of matching processes, excluding this process.
// An empty slice means nothing matched.
// FindPIDs 返回匹配进程的有序 PID 列表（排除自身），空列表表示无匹配。
func FindPIDs(ctx context.Context, lister ProcessLister, m Matcher) ([]int, error) {
	processes, err := lister.ListProcesses(ctx)
	if err != nil {
		return nil, err
	}

	self := os.Getpid()
	pids := make([]int, 0)
	for _, p := range processes {
		if p.PID == self || !m.Match(p) {
			continue
		}
		pids = append(pids, p.PID)
	}
	sort.Ints(pids)
	return pids, nil
}
