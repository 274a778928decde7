package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/switchboard/internal/config"
	"github.com/aretw0/switchboard/internal/presentation/tui"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and clean up journaled sessions",
	Long: `List, inspect and remove the journaled sessions and stored credentials of the
configured backends. These commands work on storage directly; stop the server
before removing a tenant it is serving.`,
}

var sessionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List journaled sessions and stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, release, err := offlineJournal()
		if err != nil {
			return err
		}
		defer release()

		ctx := cmd.Context()
		tenants, err := journal.List(ctx)
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}
		entries := make([]domain.JournalEntry, 0, len(tenants))
		seen := make(map[domain.TenantID]bool, len(tenants))
		for _, t := range tenants {
			e, err := journal.Load(ctx, t)
			if err != nil {
				logger.Warn("Skipping unreadable journal entry", "tenant", t, "err", err)
				continue
			}
			entries = append(entries, e)
			seen[t] = true
		}

		authenticated, err := newCredentials(cfg).Authenticated(ctx)
		if err != nil {
			return fmt.Errorf("listing credentials: %w", err)
		}
		hasCreds := make(map[domain.TenantID]bool, len(authenticated))
		for _, t := range authenticated {
			hasCreds[t] = true
			if !seen[t] {
				entries = append(entries, domain.JournalEntry{Tenant: t, State: domain.StateNotInitialized})
			}
		}

		rows := tui.RowsFromJournal(entries, func(t domain.TenantID) bool { return hasCreds[t] })
		tui.RenderSessions(cmd.OutOrStdout(), rows, tui.ColorEnabled(os.Stdout))
		return nil
	},
}

var sessionsInspectCmd = &cobra.Command{
	Use:   "inspect <tenant>",
	Short: "Print the journal entry of a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, release, err := offlineJournal()
		if err != nil {
			return err
		}
		defer release()

		entry, err := journal.Load(cmd.Context(), domain.TenantID(args[0]))
		if err != nil {
			return fmt.Errorf("loading session %q: %w", args[0], err)
		}
		data, err := json.MarshalIndent(entry, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <tenant>...",
	Short: "Remove one or more journaled sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withCreds, _ := cmd.Flags().GetBool("credentials")
		journal, release, err := offlineJournal()
		if err != nil {
			return err
		}
		defer release()

		creds := newCredentials(cfg)
		var errs error
		for _, raw := range args {
			tenant := domain.TenantID(raw)
			if err := tenant.Validate(); err != nil {
				errs = errors.Join(errs, err)
				continue
			}
			if err := journal.Delete(cmd.Context(), tenant); err != nil {
				errs = errors.Join(errs, fmt.Errorf("removing %q: %w", raw, err))
				continue
			}
			if withCreds {
				if err := creds.Delete(cmd.Context(), tenant); err != nil {
					errs = errors.Join(errs, fmt.Errorf("removing credentials of %q: %w", raw, err))
					continue
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed session '%s'\n", raw)
		}
		return errs
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsLsCmd, sessionsInspectCmd, sessionsRmCmd)
	sessionsRmCmd.Flags().Bool("credentials", false, "Also delete the stored credentials")
}

// offlineJournal opens the configured journal outside a running server.
func offlineJournal() (ports.SessionJournal, func(), error) {
	if cfg.Journal.Backend == config.JournalMemory {
		return nil, nil, errors.New("the memory journal only exists inside a running server")
	}
	var rdb *backend.Client
	journal, release, err := openJournal(cfg, func() *backend.Client {
		rdb = redisClient(cfg.Redis)
		return rdb
	})
	if err != nil {
		return nil, nil, err
	}
	return journal, func() {
		_ = release()
		if rdb != nil {
			_ = rdb.Close()
		}
	}, nil
}
