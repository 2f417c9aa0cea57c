package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "echowall",
	Short: "EchoWall is a communal audio wall service.",
	Long:  `EchoWall 接收许多独立上传的短音频片段，并按需把它们合成为一条连续的音频流`,
	Run: func(cmd *cobra.Command, args []string) {
		// 默认行为：启动服务器
		serverCmd.Run(cmd, args)
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
