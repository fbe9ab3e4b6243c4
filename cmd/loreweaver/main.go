package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "loreweaver",
		Short: "Scene-by-scene story engine with validated long-form consistency",
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.AddCommand(initCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(generateCmd())
	root.AddCommand(scenesCmd())
	root.AddCommand(deleteSceneCmd())
	root.AddCommand(projectsCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(synthesizeCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
