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

// Package controller starts, stops, restarts and inspects the managed server.
// The only state is whether the server answers its liveness probe, observed
// fresh on every call.
// controller 包负责启动、停止、重启和查看被管理的服务器。
// 唯一的状态是服务器是否响应存活探测，每次调用时重新观察。
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/knowledgeresearch/servermgr/internal/audit"
	"github.com/knowledgeresearch/servermgr/internal/config"
	"github.com/knowledgeresearch/servermgr/internal/discovery"
	"github.com/knowledgeresearch/servermgr/internal/precheck"
	"github.com/knowledgeresearch/servermgr/internal/probe"
	"github.com/knowledgeresearch/servermgr/internal/process"
	"go.uber.org/zap"
)

// Errors returned by controller operations
// 控制器操作返回的错误
var (
	// ErrPrecheckFailed indicates a blocking precheck failed before launch
	// ErrPrecheckFailed 表示启动前有阻断性的预检查失败
	ErrPrecheckFailed = errors.New("precheck failed")

	// ErrStartTimeout indicates the server never answered the probe
	// ErrStartTimeout 表示服务器始终未响应探测
	ErrStartTimeout = errors.New("server did not become ready")

	// ErrLaunchFailed is process.ErrLaunchFailed
	ErrLaunchFailed = process.ErrLaunchFailed

	// ErrScanFailed is discovery.ErrScanFailed
	ErrScanFailed = discovery.ErrScanFailed
)

// features are listed after a successful start
var features = []string{
	"View and approve Target and Knowledge documents",
	"Generate research questions with Claude AI",
	"Deep research with Perplexity Sonar",
	"Automatic knowledge base integration",
	"Persistent knowledge updates",
}

// Prechecker runs the prerequisites checks before a start
// Prechecker 在启动前执行前置条件检查
type Prechecker interface {
	RunAll(ctx context.Context) (*precheck.Result, error)
}

// SleepFunc pauses for d or until ctx is done
// SleepFunc 暂停 d 或直到 ctx 结束
type SleepFunc func(ctx context.Context, d time.Duration) error

// Dependencies are the collaborators of a Controller. Nil fields get
// production defaults built from the config.
// Dependencies 是 Controller 的协作者，nil 字段使用基于配置的生产默认值。
type Dependencies struct {
	Prober     probe.Prober
	Lister     discovery.ProcessLister
	Launcher   process.Launcher
	Terminator process.Terminator
	Prechecker Prechecker
	Recorder   audit.Recorder
	Sleep      SleepFunc

	// Out receives operator-facing text
	// Out 接收面向操作者的文本
	Out io.Writer

	Logger *zap.Logger
	Now    func() time.Time
}

// StartOptions tunes a start
// StartOptions 调整启动行为
type StartOptions struct {
	SkipPrecheck bool
}

// Controller drives the server lifecycle
// Controller 驱动服务器生命周期
type Controller struct {
	cfg     *config.Config
	matcher discovery.Matcher

	prober     probe.Prober
	lister     discovery.ProcessLister
	launcher   process.Launcher
	terminator process.Terminator
	prechecker Prechecker
	recorder   audit.Recorder
	sleep      SleepFunc
	out        io.Writer
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a Controller for cfg
// New 为 cfg 创建 Controller
func New(cfg *config.Config, deps Dependencies) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Controller{
		cfg: cfg,
		matcher: discovery.Matcher{
			Runtime:    cfg.Process.Runtime,
			EntryPoint: cfg.Process.EntryPoint,
		},
		prober:     deps.Prober,
		lister:     deps.Lister,
		launcher:   deps.Launcher,
		terminator: deps.Terminator,
		prechecker: deps.Prechecker,
		recorder:   deps.Recorder,
		sleep:      deps.Sleep,
		out:        deps.Out,
		logger:     logger,
		now:        deps.Now,
	}

	if c.prober == nil {
		p := probe.NewHTTPProber(cfg.ProbeURL(), cfg.Server.ProbeTimeout, logger)
		logger.Debug("Liveness probe configured", zap.String("url", p.URL()))
		c.prober = p
	}
	if c.lister == nil {
		c.lister = discovery.NewProcessScanner(logger)
	}
	if c.launcher == nil {
		c.launcher = process.NewLauncher(runtime.GOOS)
	}
	if c.terminator == nil {
		c.terminator = process.NewTerminator()
	}
	if c.prechecker == nil {
		c.prechecker = precheck.NewPrechecker(precheck.ParamsFromConfig(cfg))
	}
	if c.recorder == nil {
		c.recorder = audit.NopRecorder{}
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// IsRunning reports whether the server answers its liveness probe
// IsRunning 判断服务器是否响应存活探测
func (c *Controller) IsRunning(ctx context.Context) bool {
	return c.prober.Alive(ctx)
}

// FindProcesses returns the PIDs of server processes in the process table
// FindProcesses 返回进程表中服务器进程的 PID
func (c *Controller) FindProcesses(ctx context.Context) ([]int, error) {
	return discovery.FindPIDs(ctx, c.lister, c.matcher)
}

// Start launches the server unless it already answers, then polls until it
// does or the attempts run out. The launch is never retried.
// Start 在服务器未运行时启动它，然后轮询直到就绪或次数耗尽，不会重试启动。
func (c *Controller) Start(ctx context.Context, opts StartOptions) (*Result, error) {
	res := c.begin(OperationStart)
	if err := c.start(ctx, opts, res); err != nil {
		return c.fail(ctx, res, err)
	}
	return c.finish(ctx, res), nil
}

// Stop sends a graceful termination to every server process. The result is
// advisory: a server that keeps answering is reported, not retried.
// Stop 向每个服务器进程发送优雅终止信号，结果仅供参考：仍在响应的服务器只会被报告，不会重试。
func (c *Controller) Stop(ctx context.Context) (*Result, error) {
	res := c.begin(OperationStop)
	if err := c.stop(ctx, res); err != nil {
		return c.fail(ctx, res, err)
	}
	return c.finish(ctx, res), nil
}

// Restart stops the server, pauses and starts it again
// Restart 停止服务器，暂停后重新启动
func (c *Controller) Restart(ctx context.Context, opts StartOptions) (*Result, error) {
	res := c.begin(OperationRestart)
	c.printf("Restarting server... / 正在重启服务器...\n")

	stopped := c.begin(OperationStop)
	if err := c.stop(ctx, stopped); err != nil {
		return c.fail(ctx, res, err)
	}

	if err := c.sleep(ctx, c.cfg.Timing.RestartPause); err != nil {
		return nil, err
	}

	if err := c.start(ctx, opts, res); err != nil {
		return c.fail(ctx, res, err)
	}
	return c.finish(ctx, res), nil
}

// Status reports liveness and the matching PIDs
// Status 报告存活状态和匹配的 PID
func (c *Controller) Status(ctx context.Context) (*Result, error) {
	res := c.begin(OperationStatus)
	res.Running = c.IsRunning(ctx)

	pids, err := c.FindProcesses(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("Process scan failed", zap.Error(err))
		return nil, err
	}
	res.PIDs = pids

	if res.Running {
		res.Outcome = OutcomeRunning
		res.Message = fmt.Sprintf("Server is running at %s / 服务器正在运行：%s", res.URL, res.URL)
	} else {
		res.Outcome = OutcomeNotRunning
		res.Message = "Server is not running / 服务器未运行"
	}

	c.printf("%s\n", res.Message)
	if len(pids) > 0 {
		c.printf("Process IDs: %s / 进程 ID：%s\n", joinPIDs(pids), joinPIDs(pids))
	}
	if !res.Running {
		c.printf("Start it with: servermgr start / 启动命令：servermgr start\n")
	}
	return c.finish(ctx, res), nil
}

func (c *Controller) start(ctx context.Context, opts StartOptions, res *Result) error {
	if c.IsRunning(ctx) {
		res.Outcome = OutcomeAlreadyRunning
		res.Running = true
		res.Message = fmt.Sprintf("Server is already running at %s / 服务器已在运行：%s", res.URL, res.URL)
		res.PIDs = c.bestEffortPIDs(ctx)
		c.printf("%s\n", res.Message)
		return nil
	}

	remindKeys := false
	if !opts.SkipPrecheck {
		c.printf("Checking prerequisites... / 正在检查前置条件...\n")
		checks, err := c.prechecker.RunAll(ctx)
		if err != nil {
			return err
		}
		res.Precheck = checks
		for _, item := range checks.Items {
			c.printf("  %s %s\n", statusMark(item.Status), item.Message)
		}
		if env := checks.GetCheck(precheck.CheckNameEnvFile); env != nil && env.Status == precheck.CheckStatusWarning {
			remindKeys = true
		}
		if checks.Failed() {
			res.Outcome = OutcomePrecheckFailed
			res.Message = "Prerequisites not met, server not started / 前置条件不满足，服务器未启动"
			c.printf("%s\n", res.Message)
			return fmt.Errorf("%w: %s", ErrPrecheckFailed, failedChecks(checks))
		}
	}

	c.printf("Starting server... / 正在启动服务器...\n")
	pid, err := c.launcher.Launch(ctx, process.LaunchSpec{
		Command: c.cfg.Process.LaunchCommand,
		Dir:     c.cfg.Server.WorkDir,
		LogFile: c.cfg.ResolvePath(c.cfg.Process.LaunchLog),
		Title:   c.cfg.Process.WindowTitle,
		Env:     []string{"PORT=" + strconv.Itoa(c.cfg.Server.Port)},
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.Outcome = OutcomeLaunchFailed
		res.Message = fmt.Sprintf("Failed to launch server: %v / 启动服务器失败：%v", err, err)
		c.printf("%s\n", res.Message)
		if !errors.Is(err, ErrLaunchFailed) {
			err = fmt.Errorf("%w: %v", ErrLaunchFailed, err)
		}
		return err
	}
	c.logger.Info("Server launched",
		zap.Int("pid", pid),
		zap.String("launcher", c.launcher.Name()),
		zap.String("command", c.cfg.Process.LaunchCommand))

	c.printf("Waiting for server to start... / 等待服务器启动...\n")
	attempts := c.cfg.Timing.PollAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.sleep(ctx, c.cfg.Timing.PollInterval); err != nil {
			return err
		}
		if c.IsRunning(ctx) {
			res.Outcome = OutcomeStarted
			res.Running = true
			res.PIDs = c.bestEffortPIDs(ctx)
			res.Message = "Server started successfully! / 服务器启动成功！"
			c.logger.Info("Server is ready", zap.Int("attempt", attempt))
			c.printf("%s\n", res.Message)
			c.printf("Access the application at: %s / 访问地址：%s\n", res.URL, res.URL)
			if remindKeys {
				c.printf("Remember to update your API keys in the .env file! / 请记得在 .env 文件中更新 API 密钥！\n")
			}
			c.printf("Features available: / 可用功能：\n")
			for _, f := range features {
				c.printf("  • %s\n", f)
			}
			return nil
		}
		c.logger.Debug("Server not ready yet", zap.Int("attempt", attempt), zap.Int("attempts", attempts))
	}

	waited := c.cfg.Timing.PollInterval * time.Duration(attempts)
	res.Outcome = OutcomeStartTimeout
	res.PIDs = []int{pid}
	res.Message = fmt.Sprintf("Server failed to start within %s / 服务器未能在 %s 内启动", waited, waited)
	c.printf("%s\n", res.Message)
	return fmt.Errorf("%w after %d attempts", ErrStartTimeout, attempts)
}

func (c *Controller) stop(ctx context.Context, res *Result) error {
	c.printf("Stopping server... / 正在停止服务器...\n")

	pids, err := c.FindProcesses(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	res.PIDs = pids

	if len(pids) == 0 {
		res.Outcome = OutcomeNothingToStop
		res.Message = "No server process found, nothing to stop / 未找到服务器进程，无需停止"
		c.printf("%s\n", res.Message)
		return nil
	}

	for _, pid := range pids {
		if err := c.terminator.Terminate(pid); err != nil {
			c.logger.Warn("Failed to stop process", zap.Int("pid", pid), zap.Error(err))
			c.printf("  Could not stop process %d: %v / 无法停止进程 %d\n", pid, err, pid)
			continue
		}
		c.logger.Info("Sent termination signal", zap.Int("pid", pid))
		c.printf("  Stopped process %d / 已停止进程 %d\n", pid, pid)
	}

	if err := c.sleep(ctx, c.cfg.Timing.StopWait); err != nil {
		return err
	}

	survivors := c.survivors(ctx, pids)
	res.Running = c.IsRunning(ctx)

	switch {
	case len(survivors) > 0:
		res.Outcome = OutcomeStillRunning
		res.PIDs = survivors
		res.Message = fmt.Sprintf("Server may still be running, processes alive: %s / 服务器可能仍在运行，存活进程：%s",
			joinPIDs(survivors), joinPIDs(survivors))
	case res.Running:
		res.Outcome = OutcomeStillRunning
		res.Message = "Server may still be running / 服务器可能仍在运行"
	default:
		res.Outcome = OutcomeStopped
		res.Message = "Server stopped successfully / 服务器已成功停止"
	}
	c.printf("%s\n", res.Message)
	return nil
}

func (c *Controller) begin(op Operation) *Result {
	return &Result{
		OperationID: uuid.NewString(),
		Operation:   op,
		URL:         c.cfg.AccessURL(),
		PIDs:        []int{},
		StartedAt:   c.now(),
	}
}

// fail records res when it reached an outcome and passes err through.
// Cancellation and scan failures have no outcome and are not recorded.
// fail 在 res 已有结果时记录它并透传 err，取消和扫描失败没有结果，不记录。
func (c *Controller) fail(ctx context.Context, res *Result, err error) (*Result, error) {
	if res.Outcome == "" {
		c.logger.Warn("Operation aborted", zap.String("operation", string(res.Operation)), zap.Error(err))
		return nil, err
	}
	c.finish(ctx, res)
	return res, err
}

func (c *Controller) finish(ctx context.Context, res *Result) *Result {
	res.FinishedAt = c.now()

	c.logger.Info("Operation finished",
		zap.String("operation_id", res.OperationID),
		zap.String("operation", string(res.Operation)),
		zap.String("outcome", string(res.Outcome)),
		zap.Ints("pids", res.PIDs),
		zap.Duration("duration", res.Duration()))

	record := &audit.OperationRecord{
		OperationID: res.OperationID,
		Operation:   string(res.Operation),
		Outcome:     string(res.Outcome),
		Message:     res.Message,
		PIDs:        audit.PIDList(res.PIDs),
		Host:        net.JoinHostPort(c.cfg.Server.Host, strconv.Itoa(c.cfg.Server.Port)),
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
		DurationMs:  res.Duration().Milliseconds(),
	}
	if err := c.recorder.Record(context.WithoutCancel(ctx), record); err != nil {
		c.logger.Warn("Failed to record operation",
			zap.String("operation_id", res.OperationID),
			zap.Error(err))
	}
	return res
}

// survivors returns the pids that are still alive and still match the server.
// An exited child nobody reaped answers signal 0 but has left the scan.
// survivors 返回仍存活且仍匹配服务器的 PID，未回收的已退出子进程不会出现在扫描中。
func (c *Controller) survivors(ctx context.Context, pids []int) []int {
	var alive []int
	for _, pid := range pids {
		if c.terminator.Alive(pid) {
			alive = append(alive, pid)
		}
	}
	if len(alive) == 0 {
		return nil
	}

	current, err := c.FindProcesses(ctx)
	if err != nil {
		c.logger.Warn("Process rescan failed", zap.Error(err))
		return alive
	}
	matched := make(map[int]bool, len(current))
	for _, pid := range current {
		matched[pid] = true
	}
	survivors := alive[:0]
	for _, pid := range alive {
		if matched[pid] {
			survivors = append(survivors, pid)
		}
	}
	return survivors
}

// bestEffortPIDs is used where a scan failure must not change the outcome
func (c *Controller) bestEffortPIDs(ctx context.Context) []int {
	pids, err := c.FindProcesses(ctx)
	if err != nil {
		c.logger.Warn("Process scan failed", zap.Error(err))
		return []int{}
	}
	return pids
}

func (c *Controller) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

func statusMark(status precheck.CheckStatus) string {
	switch status {
	case precheck.CheckStatusPassed:
		return "✓"
	case precheck.CheckStatusFailed:
		return "✗"
	default:
		return "!"
	}
}

func failedChecks(result *precheck.Result) string {
	names := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		if item.Status == precheck.CheckStatusFailed {
			names = append(names, string(item.Name))
		}
	}
	return strings.Join(names, ", ")
}

func joinPIDs(pids []int) string {
	parts := make([]string, len(pids))
	for i, pid := range pids {
		parts[i] = strconv.Itoa(pid)
	}
	return strings.Join(parts, ", ")
}

// sleepContext waits for d or until ctx is done
// sleepContext 等待 d 或直到 ctx 结束
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
