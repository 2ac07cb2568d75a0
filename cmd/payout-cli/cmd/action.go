package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var actionCmd = &cobra.Command{
	Use:   "action <request-id> <approve|retry|reject|ack>",
	Short: "处理升级单",
	Long: `对失败或升级中的提现单执行运营决定。
approve 人工放款，retry 重新入队再试，reject 维持失败，ack 仅确认升级。`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		operatorID, _ := cmd.Flags().GetUint64("operator")

		body, _ := json.Marshal(map[string]uint64{"operator_id": operatorID})
		path := fmt.Sprintf("/api/v1/payouts/%s/%s", args[0], args[1])

		_, err := callAPI("POST", path, bytes.NewReader(body))
		if err != nil {
			fmt.Printf("❌ 操作失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("✅ 操作成功: %s -> %s\n", args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(actionCmd)
	actionCmd.Flags().Uint64P("operator", "o", 0, "运营人员 ID")
	_ = actionCmd.MarkFlagRequired("operator")
}
