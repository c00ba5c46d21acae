package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"homefs/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a sample configuration file with two example users.

Edit the generated file before starting the server: set real home
directories and replace the placeholder passwords (or use "homefs passwd"
to generate bcrypt hashes and set password_bcrypt instead).`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(config.SampleConfig(), path); err != nil {
		return err
	}
	fmt.Printf("Wrote sample configuration to %s\n", path)
	return nil
}
