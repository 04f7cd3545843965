package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	types "github.com/sebas/softphone/api/types/v1"
)

func prefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			p, err := newClient().Prefs(ctx)
			if err != nil {
				return err
			}
			printPrefs(p)
			return nil
		},
	}

	var (
		autoSpeaker bool
		recordDir   string
		accountSID  string
		authToken   string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var u types.PreferencesUpdate
			flags := cmd.Flags()
			if flags.Changed("auto-speaker") {
				u.AutoSpeaker = &autoSpeaker
			}
			if flags.Changed("recording-dir") {
				u.RecordingDirectory = &recordDir
			}
			if flags.Changed("account-sid") {
				u.AccountSID = &accountSID
			}
			if flags.Changed("auth-token") {
				u.AuthToken = &authToken
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			p, err := newClient().UpdatePrefs(ctx, u)
			if err != nil {
				return err
			}
			printPrefs(p)
			return nil
		},
	}
	set.Flags().BoolVar(&autoSpeaker, "auto-speaker", false, "turn the speaker on when a call connects")
	set.Flags().StringVar(&recordDir, "recording-dir", "", "directory for call recordings")
	set.Flags().StringVar(&accountSID, "account-sid", "", "account SID")
	set.Flags().StringVar(&authToken, "auth-token", "", "account auth token")
	cmd.AddCommand(set)

	return cmd
}

func printPrefs(p *types.Preferences) {
	fmt.Printf("Auto speaker:   %s\n", onOff(p.AutoSpeaker))
	dir := p.RecordingDirectory
	if dir == "" {
		dir = "(default)"
	}
	fmt.Printf("Recording dir:  %s\n", dir)
	fmt.Printf("Account SID:    %s\n", p.AccountSID)
	fmt.Printf("Auth token set: %v\n", p.HasAuthToken)
}
