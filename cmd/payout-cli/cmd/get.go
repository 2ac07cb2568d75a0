package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <request-id>",
	Short: "查询提现单详情",
	Long:  `按提现单 ID 查询当前状态、尝试次数和最近一次失败原因。`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := callAPI("GET", "/api/v1/payouts/"+args[0], nil)
		if err != nil {
			fmt.Printf("查询失败: %v\n", err)
			os.Exit(1)
		}
		printJSON(data)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
