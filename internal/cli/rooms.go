package cli

import (
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/spf13/cobra"
)

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <host-name>",
		Short: "Create a room; you become its host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client().CreateRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			text := TitleStyle.Render("Room created") + "\n" + renderTable([]string{"Field", "Value"}, [][]string{
				{"Room", string(res.RoomID)},
				{"Host identity", string(res.HostIdentity)},
				{"Host token", res.HostToken},
				{"Valid until", res.ValidUntil.Local().Format(time.DateTime)},
			})
			return a.print(cmd.OutOrStdout(), res, text)
		},
	}
}

func newJoinCmd(a *app) *cobra.Command {
	var isHost bool
	cmd := &cobra.Command{
		Use:   "join <room> <user-name>",
		Short: "Join a room's waiting list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client().JoinRoom(cmd.Context(), domain.RoomID(args[0]), args[1], isHost)
			if err != nil {
				return err
			}
			state := SuccessStyle.Render("admitted")
			if res.IsInWaitingRoom {
				state = WarningStyle.Render("waiting for the host")
			}
			text := renderTable([]string{"Field", "Value"}, [][]string{
				{"Identity", string(res.UserIdentity)},
				{"Token", res.UserToken},
				{"State", state},
			})
			if res.IsInWaitingRoom {
				text += "\n" + MutedStyle.Render(fmt.Sprintf("meetctl wait %s %s", args[0], res.UserIdentity))
			}
			return a.print(cmd.OutOrStdout(), res, text)
		},
	}
	cmd.Flags().BoolVar(&isHost, "host", false, "claim the host role and skip the waiting list")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <room>",
		Short: "Show a room's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.client().RoomStatus(cmd.Context(), domain.RoomID(args[0]))
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), st, statusView(*st))
		},
	}
}

func newRoomsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List active rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rooms, err := a.client().ListRooms(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), rooms, roomTable(rooms))
		},
	}
}

func newWaitingCmd(a *app) *cobra.Command {
	var participants bool
	cmd := &cobra.Command{
		Use:   "waiting <room>",
		Short: "Show the waiting list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			roomID := domain.RoomID(args[0])
			list, err := c.WaitingList(cmd.Context(), roomID)
			if participants {
				list, err = c.Participants(cmd.Context(), roomID)
			}
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), list, participantTable(list))
		},
	}
	cmd.Flags().BoolVar(&participants, "participants", false, "show admitted participants instead")
	return cmd
}

func newApproveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <room> <identity>",
		Short: "Admit a waiting user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.client().ApproveUser(cmd.Context(), domain.RoomID(args[0]), domain.UserID(args[1]))
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), p, SuccessStyle.Render("Approved "+p.Name))
		},
	}
}

func newLeaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <room> <identity>",
		Short: "Leave a room",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().LeaveRoom(cmd.Context(), domain.RoomID(args[0]), domain.UserID(args[1])); err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), map[string]bool{"success": true}, "Left "+args[0])
		},
	}
}

func newEndCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "end <room>",
		Short: "End a room for everyone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().EndRoom(cmd.Context(), domain.RoomID(args[0])); err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), map[string]bool{"success": true}, "Ended "+args[0])
		},
	}
}
