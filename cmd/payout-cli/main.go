package main

import "payout-core/cmd/payout-cli/cmd"

func main() {
	cmd.Execute()
}
