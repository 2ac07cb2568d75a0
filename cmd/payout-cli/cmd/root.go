package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "payout-cli",
	Short: "提现运营命令行工具",
	Long: `提现服务的运营侧命令行工具。
支持查询提现单、处理升级单 (approve / retry / reject / ack) 以及查看队列状态。`,
}

var serverAddr string

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "http://localhost:8080", "提现服务地址")
}

// apiEnvelope 服务端统一响应结构
type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// callAPI 请求服务端并解开统一响应壳，业务码非 0 视为失败
func callAPI(method, path string, body io.Reader) (json.RawMessage, error) {
	url := strings.TrimRight(serverAddr, "/") + path
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("响应解析失败: %w (body: %s)", err, raw)
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("[%d] %s", env.Code, env.Message)
	}
	return env.Data, nil
}

func printJSON(data json.RawMessage) {
	var buf map[string]interface{}
	if err := json.Unmarshal(data, &buf); err != nil {
		fmt.Println(string(data))
		return
	}
	out, _ := json.MarshalIndent(buf, "", "  ")
	fmt.Println(string(out))
}
