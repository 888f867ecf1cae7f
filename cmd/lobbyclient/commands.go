package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DoyleJ11/lol-lobby-client/internal/api"
	"github.com/DoyleJ11/lol-lobby-client/internal/engine"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

var (
	password  string
	capacity  int
	pickMode  string
	teamCount int
)

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log in and store the token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		res, err := e.api.Login(cmd.Context(), api.Credentials{Username: args[0], Password: password})
		if err != nil {
			return err
		}
		if err := e.tokens.Save(res.Token); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", res.User.Username, res.User.ID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		return e.tokens.Clear()
	},
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List open rooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		rooms, err := e.api.ListRooms(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPLAYERS")
		for _, r := range rooms {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\n", r.ID, r.Name, r.Status, r.PlayerCount, r.Capacity)
		}
		return tw.Flush()
	},
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a room owned by the logged in user",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		room, err := e.api.CreateRoom(cmd.Context(), api.CreateRoom{
			Name: strings.Join(args, " "),
			Settings: protocol.RoomSettings{
				Capacity:  capacity,
				PickMode:  pickMode,
				TeamCount: teamCount,
			},
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), room.ID)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&password, "password", os.Getenv("LOBBY_PASSWORD"), "Password (first login registers it)")

	d := engine.DefaultSettings()
	createCmd.Flags().IntVar(&capacity, "capacity", d.Capacity, "Maximum players")
	createCmd.Flags().StringVar(&pickMode, "pick-mode", d.PickMode, "Team pick mode: random, captains or manual")
	createCmd.Flags().IntVar(&teamCount, "teams", d.TeamCount, "Number of teams")
}
