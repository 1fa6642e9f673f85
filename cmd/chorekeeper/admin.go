package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dukerupert/chorekeeper/internal/auth"
	"github.com/dukerupert/chorekeeper/internal/migrate"
	"github.com/dukerupert/chorekeeper/internal/model"
	"github.com/dukerupert/chorekeeper/internal/store"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Unify staged legacy kid and parent records into users",
		Long: `Unify staged legacy kid and parent records into users.

A backup is taken before anything is written. Running it again after a
successful run does nothing. serve runs the same step on startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			m := migrate.NewMigrator(store.NewLegacyStore(a.db), store.NewUserStore(a.db), a.snapshotter(), a.logger.With("component", "migrate"))
			res, err := m.Run(cmd.Context())
			if err != nil {
				return err
			}
			if res.AlreadyMigrated {
				fmt.Println("Nothing to migrate")
				return nil
			}
			fmt.Printf("Created %d users (%d merged)\n", res.Users, res.Merged)
			if res.Backup != nil {
				fmt.Printf("Backup written to %s\n", res.Backup.Path)
			}
			return nil
		},
	}
}

func importLegacyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-legacy [export.json]",
		Short: "Stage a legacy kids/parents JSON export for migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := migrate.Import(cmd.Context(), store.NewLegacyStore(a.db), f)
			if err != nil {
				return err
			}
			fmt.Printf("Staged %d legacy records\n", n)
			return nil
		},
	}
}

func remapsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "remaps",
		Short: "List how legacy record keys map to user ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			remaps, err := store.NewLegacyStore(a.db).ListRemaps(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(remaps)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BUCKET\tLEGACY ID\tUSER ID")
			for _, r := range remaps {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Bucket, r.LegacyID, r.NewUserID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and bootstrap users",
	}
	cmd.AddCommand(usersListCmd(), usersCreateCmd())
	return cmd
}

func usersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users and their capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			users, err := store.NewUserStore(a.db).List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tASSIGNABLE\tAPPROVE\tMANAGE")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%t\n", u.ID, u.DisplayName, u.CanBeAssigned, u.CanApprove, u.CanManage)
			}
			return tw.Flush()
		},
	}
}

// usersCreateCmd exists so the first manager can be created before anyone
// can authenticate.
func usersCreateCmd() *cobra.Command {
	var (
		caps     model.Capabilities
		adminRef string
	)
	cmd := &cobra.Command{
		Use:   "create [display name]",
		Short: "Create a user directly in the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			u, err := store.NewUserStore(a.db).Create(cmd.Context(), &model.User{
				ID:               id.String(),
				DisplayName:      args[0],
				CanBeAssigned:    caps.CanBeAssigned,
				CanApprove:       caps.CanApprove,
				CanManage:        caps.CanManage,
				ExternalAdminRef: adminRef,
			})
			if err != nil {
				return err
			}
			fmt.Println(u.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&caps.CanBeAssigned, "assignable", false, "user can be assigned chores")
	cmd.Flags().BoolVar(&caps.CanApprove, "approve", false, "user can approve claimed chores")
	cmd.Flags().BoolVar(&caps.CanManage, "manage", false, "user can manage chores and users")
	cmd.Flags().StringVar(&adminRef, "admin-ref", "", "external account reference for host admin matching")
	return cmd
}

func tokenCmd() *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "token [user id]",
		Short: "Mint an API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			u, err := store.NewUserStore(a.db).GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if u == nil {
				return errors.New("user not found")
			}
			tok, err := auth.NewTokens(a.cfg.Auth.Secret, a.cfg.Auth.TokenTTL).Sign(u.ID, admin)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "include the host admin claim")
	return cmd
}

func hostAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host-admin",
		Short: "Manage external references that grant host admin",
	}
	for _, sub := range []struct {
		use, short string
		apply      func(s *store.AdminStore, cmd *cobra.Command, ref string) error
	}{
		{"add [external ref]", "Grant host admin to users linked to ref", func(s *store.AdminStore, cmd *cobra.Command, ref string) error {
			return s.AddHostAdmin(cmd.Context(), ref)
		}},
		{"remove [external ref]", "Revoke host admin from ref", func(s *store.AdminStore, cmd *cobra.Command, ref string) error {
			return s.RemoveHostAdmin(cmd.Context(), ref)
		}},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   sub.use,
			Short: sub.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp()
				if err != nil {
					return err
				}
				defer a.Close()
				return sub.apply(store.NewAdminStore(a.db), cmd, args[0])
			},
		})
	}
	return cmd
}
