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
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/knowledgeresearch/servermgr/internal/audit"
	"github.com/knowledgeresearch/servermgr/internal/controller"
	"github.com/knowledgeresearch/servermgr/internal/precheck"
	"github.com/spf13/cobra"
)

// Subcommand flags / 子命令标志
var (
	skipPrecheck  bool
	statusOutput  string
	checkOutput   string
	historyOutput string
	historyLimit  int
	historyOp     string
	historyResult string
)

// startCmd starts the server
// startCmd 启动服务器
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server / 启动服务器",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		a, err := newApp(cmd, out)
		if err != nil {
			return err
		}
		defer a.close()

		printBanner(out)
		_, err = a.ctrl.Start(cmd.Context(), controller.StartOptions{SkipPrecheck: skipPrecheck})
		return err
	},
}

// stopCmd stops the server
// stopCmd 停止服务器
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the server / 停止服务器",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		a, err := newApp(cmd, out)
		if err != nil {
			return err
		}
		defer a.close()

		printBanner(out)
		_, err = a.ctrl.Stop(cmd.Context())
		return err
	},
}

// restartCmd stops, pauses and starts the server
// restartCmd 停止、暂停并启动服务器
var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the server / 重启服务器",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		a, err := newApp(cmd, out)
		if err != nil {
			return err
		}
		defer a.close()

		printBanner(out)
		_, err = a.ctrl.Restart(cmd.Context(), controller.StartOptions{SkipPrecheck: skipPrecheck})
		return err
	},
}

// statusCmd shows server status
// statusCmd 显示服务器状态
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status / 显示服务器状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutput(statusOutput); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		text := statusOutput == outputText

		// Structured formats replace the operator text
		// 结构化格式替代面向操作者的文本
		ctrlOut := io.Discard
		if text {
			ctrlOut = out
		}
		a, err := newApp(cmd, ctrlOut)
		if err != nil {
			return err
		}
		defer a.close()

		if text {
			printBanner(out)
		}
		res, err := a.ctrl.Status(cmd.Context())
		if err != nil {
			return err
		}
		if text {
			return nil
		}
		return render(out, statusOutput, res, nil)
	},
}

// checkCmd runs the prechecks only
// checkCmd 仅执行预检查
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check server prerequisites / 检查服务器前置条件",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutput(checkOutput); err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		result, err := precheck.NewPrechecker(precheck.ParamsFromConfig(cfg)).RunAll(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if checkOutput == outputText {
			printBanner(out)
		}
		if err := render(out, checkOutput, result, func(w io.Writer) error {
			_, err := io.WriteString(w, formatPrecheckResult(result))
			return err
		}); err != nil {
			return err
		}

		if result.Failed() {
			return fmt.Errorf("%w: %s", controller.ErrPrecheckFailed, result.Summary)
		}
		return nil
	},
}

// historyCmd lists recorded operations
// historyCmd 列出已记录的操作
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded operations / 列出操作历史",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutput(historyOutput); err != nil {
			return err
		}
		a, err := newApp(cmd, io.Discard)
		if err != nil {
			return err
		}
		defer a.close()

		if a.history == nil {
			return fmt.Errorf("operation history is disabled or unavailable (audit.enabled=%t)", a.cfg.Audit.Enabled)
		}

		records, total, err := a.history.List(cmd.Context(), &audit.RecordFilter{
			Operation: historyOp,
			Outcome:   historyResult,
			Page:      1,
			PageSize:  historyLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}

		return render(cmd.OutOrStdout(), historyOutput, records, func(w io.Writer) error {
			return writeHistoryTable(w, records, total)
		})
	},
}

// configCmd prints the effective configuration
// configCmd 打印生效的配置
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration / 打印生效的配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		data, err := cfg.ToYAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	startCmd.Flags().BoolVar(&skipPrecheck, "skip-precheck", false, "launch without checking prerequisites")
	restartCmd.Flags().BoolVar(&skipPrecheck, "skip-precheck", false, "launch without checking prerequisites")

	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", outputText, "output format: text, json or yaml")
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", outputText, "output format: text, json or yaml")

	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", outputText, "output format: text, json or yaml")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of records (0 for all)")
	historyCmd.Flags().StringVar(&historyOp, "operation", "", "only show this operation (start, stop, restart, status)")
	historyCmd.Flags().StringVar(&historyResult, "outcome", "", "only show this outcome, e.g. started")
}

// printBanner prints the header shown before text output
// printBanner 打印文本输出前的标题
func printBanner(w io.Writer) {
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w, "  Knowledge Research Assistant - Server Manager")
	fmt.Fprintln(w, "========================================")
}

// formatPrecheckResult formats the precheck result for display
// formatPrecheckResult 格式化预检查结果以供显示
func formatPrecheckResult(result *precheck.Result) string {
	var sb strings.Builder
	for _, item := range result.Items {
		statusIcon := "✓"
		if item.Status == precheck.CheckStatusFailed {
			statusIcon = "✗"
		} else if item.Status == precheck.CheckStatusWarning {
			statusIcon = "⚠"
		}
		fmt.Fprintf(&sb, "%s %s: %s\n", statusIcon, item.Name, item.Message)
	}

	sb.WriteString("========================================\n")
	switch result.OverallStatus {
	case precheck.CheckStatusPassed:
		sb.WriteString("Overall: PASSED / 总体：通过\n")
	case precheck.CheckStatusWarning:
		sb.WriteString("Overall: PASSED WITH WARNINGS / 总体：通过（有警告）\n")
	default:
		sb.WriteString("Overall: FAILED / 总体：失败\n")
	}
	return sb.String()
}

// writeHistoryTable writes records as aligned columns
// writeHistoryTable 以对齐的列输出记录
func writeHistoryTable(w io.Writer, records []*audit.OperationRecord, total int64) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No operations recorded / 暂无操作记录")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tOPERATION\tOUTCOME\tPIDS\tDURATION\tID")
	for _, r := range records {
		pids := "-"
		if len(r.PIDs) > 0 {
			parts := make([]string, len(r.PIDs))
			for i, pid := range r.PIDs {
				parts[i] = fmt.Sprint(pid)
			}
			pids = strings.Join(parts, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Operation,
			r.Outcome,
			pids,
			time.Duration(r.DurationMs)*time.Millisecond,
			r.OperationID,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Showing %d of %d / 显示 %d 条，共 %d 条\n", len(records), total, len(records), total)
	return err
}
