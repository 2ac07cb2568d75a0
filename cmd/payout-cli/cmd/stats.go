package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "查看队列状态",
	Long:  `输出各优先级队列的积压、执行中、重试中和已归档任务数。`,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := callAPI("GET", "/api/v1/queue/stats", nil)
		if err != nil {
			fmt.Printf("查询失败: %v\n", err)
			os.Exit(1)
		}
		printJSON(data)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
