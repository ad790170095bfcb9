package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/tokenkit/pkg/token"
)

// newDeleteCmd creates the command that removes cached tokens by hash.
func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete HASH...",
		Short: "Delete cached tokens",
		Long:  `Delete the cached tokens with the given hashes, as shown by "tokenkit list".`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			for _, hash := range args {
				if _, ok := store.Load(hash); !ok {
					return fmt.Errorf("%w: %s", token.ErrTokenNotFound, hash)
				}
				if err := token.Delete(store, hash); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", hash)
			}
			return nil
		},
	}
}
