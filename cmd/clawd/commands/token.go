package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clawd-io/clawd/internal/config"
	"github.com/clawd-io/clawd/internal/rpc"
)

var tokenRotate bool

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the daemon.auth shared-secret token",
	Long: `Print the token clients must pass to daemon.auth before any other
RPC method. Generates one at ~/.local/share/clawd/auth.token on first run.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().BoolVar(&tokenRotate, "rotate", false, "Discard the current token and generate a new one")
}

func runToken(cmd *cobra.Command, args []string) error {
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}
	path := paths.AuthTokenPath()
	if tokenRotate {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	token, err := rpc.ReadAuthToken(path)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
