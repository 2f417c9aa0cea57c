package cmd

import (
	"fmt"
	"os"

	"echowall/config"
	"echowall/core/store"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "清空本地音频片段目录",
	Long:  `清空配置目录中的所有音频片段。仅操作本地目录，不经过HTTP接口的令牌校验`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		st, err := store.NewClipStore(cfg.ClipsDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open clip store: %v\n", err)
			os.Exit(1)
		}

		removed, err := st.Reset()
		if err != nil {
			fmt.Fprintf(os.Stderr, "reset clip store: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("已清空 %d 个片段 (%s)\n", removed, cfg.ClipsDir)
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
