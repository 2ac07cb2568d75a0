package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account <user-id>",
	Short: "查询账户余额与流水",
	Long:  `查询用户的可用余额、冻结余额，可选输出最近的账本流水。`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := callAPI("GET", "/api/v1/accounts/"+args[0], nil)
		if err != nil {
			fmt.Printf("查询失败: %v\n", err)
			os.Exit(1)
		}
		printJSON(data)

		withLedger, _ := cmd.Flags().GetBool("ledger")
		if !withLedger {
			return
		}

		data, err = callAPI("GET", "/api/v1/accounts/"+args[0]+"/ledger", nil)
		if err != nil {
			fmt.Printf("流水查询失败: %v\n", err)
			os.Exit(1)
		}
		printJSON(data)
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.Flags().BoolP("ledger", "l", false, "同时输出账本流水")
}
