package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/manash/modelchat/internal/keys"
)

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored API keys",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <backend> <key>",
			Short: "Store an API key for a backend",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				store, err := app.NewKeyStore(app.GetEnv)
				if err != nil {
					return err
				}
				if err := store.Set(args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "Stored %s key %s in %s\n", args[0], keys.MaskKey(args[1]), store.Path())
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <backend>",
			Short: "Show the stored key for a backend, masked",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				store, err := app.NewKeyStore(app.GetEnv)
				if err != nil {
					return err
				}
				key, err := store.Get(args[0])
				if err != nil {
					return err
				}
				if key == "" {
					return fmt.Errorf("%w for %s", keys.ErrKeyMissing, args[0])
				}
				fmt.Fprintf(app.Out, "%s: %s\n", args[0], keys.MaskKey(key))
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <backend>",
			Short: "Remove the stored key for a backend",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				store, err := app.NewKeyStore(app.GetEnv)
				if err != nil {
					return err
				}
				if err := store.Delete(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "Deleted %s key\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List backends with a stored key",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				store, err := app.NewKeyStore(app.GetEnv)
				if err != nil {
					return err
				}
				names, err := store.List()
				if err != nil {
					return err
				}
				if len(names) == 0 {
					fmt.Fprintln(app.Out, "No stored keys")
					return nil
				}
				for _, name := range names {
					key, err := store.Get(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(app.Out, "%s: %s\n", name, keys.MaskKey(key))
				}
				return nil
			},
		},
	)
	return cmd
}
