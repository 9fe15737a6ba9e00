package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
)

func accountsCommand() *cli.Command {
	return &cli.Command{
		Name:  "accounts",
		Usage: "manage stored accounts",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "list all stored accounts",
				Action: accountsListAction,
			},
			{
				Name:      "use",
				Usage:     "make the given account the active one",
				ArgsUsage: "<uuid>",
				Action:    accountsUseAction,
			},
		},
	}
}

func accountsListAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = application.Close() }()

	summaries, err := application.Vault.Accounts(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(cmd.Writer, "No accounts stored. Run `craftauth login` first.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UUID\tUSERNAME\tPROVIDER\tACTIVE\tLAST USED")
	for _, s := range summaries {
		active := ""
		if s.Active {
			active = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.UUID, s.Username, s.Provider, active, s.LastUsed.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func accountsUseAction(ctx context.Context, cmd *cli.Command) error {
	uuid := cmd.Args().First()
	if uuid == "" {
		return errors.New("usage: craftauth accounts use <uuid>")
	}

	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = application.Close() }()

	if err := application.Vault.SetActiveAccount(ctx, uuid); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Writer, "Active account set to %s\n", uuid)
	return nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:      "logout",
		Usage:     "remove an account, revoking its token when possible",
		ArgsUsage: "[uuid]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			removed, err := application.Manager.Logout(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintln(cmd.Writer, "No matching account.")
				return nil
			}
			fmt.Fprintln(cmd.Writer, "Account removed.")
			return nil
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "check (and refresh if needed) an account's credentials",
		ArgsUsage: "[uuid]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			valid, err := application.Manager.ValidateToken(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			if !valid {
				return errors.New("credentials are no longer valid, log in again")
			}
			fmt.Fprintln(cmd.Writer, "Credentials are valid.")
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "show the active account and game metadata",
		Action: statusAction,
	}
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = application.Close() }()

	active, err := application.Vault.ActiveAccount(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		fmt.Fprintln(cmd.Writer, "No active account.")
		return nil
	}

	fmt.Fprintf(cmd.Writer, "Active account: %s (%s, %s)\n", active.Username, active.UUID, active.Provider)
	if active.ExpiresAt != nil {
		fmt.Fprintf(cmd.Writer, "Token expires: %s\n", active.ExpiresAt.Local().Format(time.DateTime))
	}

	// Metadata is best-effort; offline status should still print the account.
	if textures, err := application.Meta.Textures(ctx, active.UUID); err == nil && textures.SkinURL != "" {
		fmt.Fprintf(cmd.Writer, "Skin: %s\n", textures.SkinURL)
		if textures.CapeURL != "" {
			fmt.Fprintf(cmd.Writer, "Cape: %s\n", textures.CapeURL)
		}
	}
	if manifest, err := application.Meta.Versions(ctx); err == nil {
		fmt.Fprintf(cmd.Writer, "Latest release: %s\n", manifest.Latest.Release)
	}
	return nil
}
