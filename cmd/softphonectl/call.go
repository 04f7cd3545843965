package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	types "github.com/sebas/softphone/api/types/v1"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			st, err := newClient().Status(ctx)
			if err != nil {
				return err
			}
			printStatus(st)
			return nil
		},
	}
}

func printStatus(st *types.CallStatus) {
	fmt.Printf("State:     %s\n", st.State)
	if st.Remote != "" {
		fmt.Printf("Remote:    %s\n", st.Remote)
	}
	if st.Origin != "" {
		fmt.Printf("From:      %s\n", st.OriginLabel)
	}
	if st.ConnectedAt != "" {
		fmt.Printf("Duration:  %s\n", (time.Duration(st.Duration) * time.Second).String())
	}
	if st.State == "Connected" {
		fmt.Printf("Muted:     %s\n", onOff(st.Muted))
		fmt.Printf("Speaker:   %s\n", onOff(st.Speaker))
		fmt.Printf("Recording: %s\n", onOff(st.Recording))
	}
	if st.LastError != "" {
		fmt.Printf("Error:     %s\n", st.LastError)
		if st.AuthFailure {
			fmt.Println("           check account credentials with 'softphonectl prefs set'")
		}
	}
}

func callCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "call <number>",
		Short: "Place a call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			st, err := newClient().Call(ctx, args[0], from)
			if err != nil {
				return err
			}
			fmt.Printf("Calling %s (%s)\n", st.Remote, st.State)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "caller number (default number if empty)")
	return cmd
}

func hangupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hangup",
		Short: "End the current call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			ended, err := newClient().Hangup(ctx)
			if err != nil {
				return err
			}
			if !ended {
				fmt.Println("No active call.")
				return nil
			}
			fmt.Println("Call ended.")
			return nil
		},
	}
}

func muteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mute",
		Short: "Toggle microphone mute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			muted, err := newClient().ToggleMute(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Mute %s\n", onOff(muted))
			return nil
		},
	}
}

func speakerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "speaker",
		Short: "Toggle speakerphone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			on, err := newClient().ToggleSpeaker(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Speaker %s\n", onOff(on))
			return nil
		},
	}
}

func dtmfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dtmf <digits>",
		Short: "Send DTMF digits (0-9, *, #, A-D) on the current call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			sent, err := newClient().SendDigits(ctx, args[0])
			if err != nil {
				return err
			}
			if !sent {
				fmt.Println("No active call.")
			}
			return nil
		},
	}
}

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the current call",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			rec, err := newClient().StartRecording(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Recording to %s\n", rec.Path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			rec, err := newClient().StopRecording(ctx)
			if err != nil {
				return err
			}
			if rec.Path == "" {
				fmt.Println("Not recording.")
				return nil
			}
			fmt.Printf("Saved %s\n", rec.Path)
			return nil
		},
	})

	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream call events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return newClient().Watch(ctx, printEvent)
		},
	}
}

func printEvent(ev types.Event) {
	line := fmt.Sprintf("%s %-18s", ev.Time, ev.Type)
	if ev.State != "" {
		line += " " + ev.State
	}
	if ev.Remote != "" {
		line += " " + ev.Remote
	}
	if ev.Path != "" {
		line += " " + ev.Path
	}
	if ev.Reason != "" {
		line += " (" + ev.Reason + ")"
	}
	fmt.Println(line)
}
