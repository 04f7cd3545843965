package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	types "github.com/sebas/softphone/api/types/v1"
)

func numbersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "numbers",
		Aliases: []string{"number"},
		Short:   "Manage caller numbers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List caller numbers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			list, err := newClient().Numbers(ctx)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No numbers found.")
				return nil
			}
			for _, n := range list {
				mark := " "
				if n.IsDefault {
					mark = "*"
				}
				fmt.Printf("%s %-16s %s\n", mark, n.Number, n.DisplayName)
			}
			return nil
		},
	})

	var nickname string
	var makeDefault bool
	add := &cobra.Command{
		Use:   "add <number>",
		Short: "Add or rename a caller number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			n, err := newClient().AddNumber(ctx, types.PhoneNumber{
				Number:    args[0],
				Nickname:  nickname,
				IsDefault: makeDefault,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Saved %s (%s)\n", n.Number, n.DisplayName)
			return nil
		},
	}
	add.Flags().StringVar(&nickname, "nickname", "", "display name")
	add.Flags().BoolVar(&makeDefault, "default", false, "make this the default number")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "default <number>",
		Short: "Set the default caller number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := newClient().SetDefaultNumber(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Default number is now %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <number>",
		Aliases: []string{"remove"},
		Short:   "Remove a caller number",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return newClient().DeleteNumber(ctx, args[0])
		},
	})

	return cmd
}
