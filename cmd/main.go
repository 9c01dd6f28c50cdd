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

// Package main is the entry point for servermgr, the controller of the
// Knowledge Research server.
// main 包是 servermgr 的入口点，用于控制 Knowledge Research 服务器。
//
// servermgr runs on the host of the Node.js server and:
// servermgr 运行在 Node.js 服务器所在主机上，负责：
// - Starts, stops and restarts the server / 启动、停止和重启服务器
// - Reports liveness and process IDs / 报告存活状态和进程 ID
// - Verifies the prerequisites before a start / 启动前校验前置条件
// - Keeps a history of control operations / 保存控制操作的历史记录
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Global flags / 全局标志
var (
	// configFile is the path to the configuration file
	// configFile 是配置文件的路径
	configFile string

	workDir string
	port    int
	verbose bool

	// plainHelp is cobra's help without the banner
	plainHelp func(*cobra.Command, []string)
)

// rootCmd is the root command for the servermgr CLI
// rootCmd 是 servermgr CLI 的根命令
var rootCmd = &cobra.Command{
	Use:   "servermgr",
	Short: "Knowledge Research Assistant - Server Manager",
	Long: `servermgr controls the local Knowledge Research Node.js server.
servermgr 用于控制本地的 Knowledge Research Node.js 服务器。

It can:
它可以：
- Start the server after checking its prerequisites / 检查前置条件后启动服务器
- Stop or restart a running server / 停止或重启正在运行的服务器
- Report whether the server is up / 报告服务器是否在运行
- List the history of control operations / 列出控制操作的历史记录`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

// versionCmd shows version information
// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information / 打印版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "servermgr\n")
		fmt.Fprintf(out, "  Version:    %s\n", Version)
		fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
		fmt.Fprintf(out, "  Go Version: %s\n", runtime.Version())
		fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	// Subcommand names are matched regardless of case
	// 子命令名称匹配不区分大小写
	cobra.EnableCaseInsensitive = true

	// Help output starts with the banner
	// 帮助输出以横幅开头
	plainHelp = rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		printBanner(cmd.OutOrStdout())
		plainHelp(cmd, args)
	})

	// Add flags to root command
	// 向根命令添加标志
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: ./servermgr.yaml)")
	rootCmd.PersistentFlags().StringVar(&workDir, "work-dir", "", "server project directory (overrides server.work_dir)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "server port (overrides server.port)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to the console at debug level")

	// Add subcommands
	// 添加子命令
	rootCmd.AddCommand(
		startCmd,
		stopCmd,
		restartCmd,
		statusCmd,
		checkCmd,
		historyCmd,
		configCmd,
		versionCmd,
	)
}

// runRoot prints help. Unknown input is reported first but is not an error.
// runRoot 打印帮助信息，未知输入会先提示，但不视为错误。
func runRoot(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	out := cmd.OutOrStdout()
	printBanner(out)
	fmt.Fprintf(out, "Unknown command: %s / 未知命令：%s\n\n", args[0], args[0])
	plainHelp(cmd, args)
	return nil
}

// exitCode reports err and returns the process exit code.
// An interrupt is a clean exit.
// exitCode 报告 err 并返回进程退出码，中断视为正常退出。
func exitCode(ctx context.Context, err error, stdout, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		fmt.Fprintf(stdout, "\nInterrupted by user / 用户中断\n")
		return 0
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	code := exitCode(ctx, err, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
