package main

import (
	"context"

	"github.com/pagedkv/llamarunner/cmd"
	"github.com/spf13/cobra"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
