package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/layer-3/credex/cmd/credex/startcmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use: "credex",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.AddCommand(startcmd.GetStartCmd(&startcmd.HTTPServer{}))

	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalf("failed to run credex: %s", err.Error())
	}
}
