package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:     "token",
	Aliases: []string{"otp"},
	Short:   "Show the API access token",
	Long: `Show the access token of the running server.

Use this when you've scrolled past the startup message or need to
call the query API from another tool.

Example:
  mm token`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(getTokenFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running. Start with: mm serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: mm serve")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Token: %s\n", token)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Example: curl -H 'Authorization: Bearer %s' http://localhost:%d/v1/moments\n", token, cfg.Port)
	return nil
}
