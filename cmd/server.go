package cmd

import (
	"echowall/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动EchoWall服务器",
	Long:  `启动EchoWall音频墙的HTTP服务器，提供上传、播放与管理接口`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
