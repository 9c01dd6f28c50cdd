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

// Package probe answers whether the managed server is accepting requests.
// probe 包判断被管理的服务器是否正在接受请求。
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Prober reports server liveness.
// Prober 报告服务器存活状态。
type Prober interface {
	// Alive returns true only when the server answered the probe with 200.
	// Alive 仅在服务器以 200 响应探测时返回 true。
	Alive(ctx context.Context) bool
}

// HTTPProber probes a fixed URL with a short timeout.
// HTTPProber 以短超时探测固定 URL。
type HTTPProber struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPProber creates a prober for url bounded by timeout.
// NewHTTPProber 创建一个受 timeout 限制的 url 探测器。
func NewHTTPProber(url string, timeout time.Duration, logger *zap.Logger) *HTTPProber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPProber{
		url:    url,
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		logger: logger,
	}
}

// URL returns the probed URL.
func (p *HTTPProber) URL() string {
	return p.url
}

// Alive implements Prober. Network errors count as not running.
// Alive 实现 Prober。网络错误视为未运行。
func (p *HTTPProber) Alive(ctx context.Context) bool {
	status, err := p.Check(ctx)
	if err != nil {
		p.logger.Debug("liveness probe failed", zap.String("url", p.url), zap.Error(err))
		return false
	}
	if status != http.StatusOK {
		p.logger.Debug("liveness probe returned non-200", zap.String("url", p.url), zap.Int("status", status))
		return false
	}
	return true
}

// Check performs one GET and returns the status code. The body is discarded.
// Check 执行一次 GET 并返回状态码，响应体被丢弃。
func (p *HTTPProber) Check(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
