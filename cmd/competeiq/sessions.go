package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/session"
)

func newSessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved sessions",
		Long:  "Save the local session to the backend, list saved sessions and bring one back",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loggedInApp(cmd)
			if err != nil {
				return err
			}
			records, err := a.client.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			printSessions(a.out, records)
			return nil
		},
	}

	saveCmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save the local session to the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loggedInApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			snap, err := a.store().Load(cmd.Context())
			if err != nil {
				return err
			}
			if snap == nil {
				return errors.New("no local session to save")
			}
			rec, err := a.client.CreateSession(cmd.Context(), model.SessionCreateRequest{
				SessionName:  args[0],
				CompanyData:  snap.CompanyData,
				AnalysisData: snap.AnalysisData,
				AnalysisID:   snap.AnalysisID,
				AppState:     snap.AppState,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Saved session %q (%s).\n", rec.SessionName, rec.ID)
			return nil
		},
	}

	activateCmd := &cobra.Command{
		Use:   "activate <id>",
		Short: "Make a saved session active and load it locally",
		Long:  `Mark the session active on the backend and replace the local session with it. Continue with "competeiq resume".`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loggedInApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			rec, err := a.client.ActivateSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			err = a.store().Save(cmd.Context(), session.Snapshot{
				AppState:     rec.AppState,
				CompanyData:  rec.CompanyData,
				AnalysisData: rec.AnalysisData,
				AnalysisID:   rec.AnalysisID,
				Timestamp:    time.Now().UnixMilli(),
				UserID:       a.userID(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Session %q is active. Run `competeiq resume` to continue.\n", rec.SessionName)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loggedInApp(cmd)
			if err != nil {
				return err
			}
			if err := a.client.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted session %s.\n", args[0])
			return nil
		},
	}

	sessionsCmd.AddCommand(listCmd)
	sessionsCmd.AddCommand(saveCmd)
	sessionsCmd.AddCommand(activateCmd)
	sessionsCmd.AddCommand(deleteCmd)
	return sessionsCmd
}

func loggedInApp(cmd *cobra.Command) (*app, error) {
	a, err := newApp(cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}
	if err := a.requireLogin(); err != nil {
		return nil, err
	}
	return a, nil
}
