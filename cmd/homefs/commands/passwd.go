package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var passwdCost int

var passwdCmd = &cobra.Command{
	Use:   "passwd <password>",
	Short: "Generate a bcrypt hash for password_bcrypt config entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runPasswd,
}

func init() {
	passwdCmd.Flags().IntVar(&passwdCost, "cost", bcrypt.DefaultCost, "bcrypt cost")
}

func runPasswd(cmd *cobra.Command, args []string) error {
	if passwdCost < bcrypt.MinCost || passwdCost > bcrypt.MaxCost {
		return fmt.Errorf("invalid cost %d (min=%d max=%d)", passwdCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(args[0]), passwdCost)
	if err != nil {
		return err
	}
	fmt.Println(string(h))
	return nil
}
