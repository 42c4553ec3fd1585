package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/reconcile"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type callFlags struct {
	enabled    bool
	signalURL  string
	iceServers []string
	token      string
	name       string
}

func newWaitCmd(a *app) *cobra.Command {
	var (
		call  callFlags
		leave bool
	)
	cmd := &cobra.Command{
		Use:   "wait <room> <identity>",
		Short: "Wait in the waiting room until the host decides",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, userID := domain.RoomID(args[0]), domain.UserID(args[1])
			out := cmd.OutOrStdout()
			if !a.asJSON {
				fmt.Fprintln(out, MutedStyle.Render("Waiting for the host to let you in..."))
			}

			p := a.poller()
			p.LeaveOnCancel = leave
			adm, err := p.AwaitAdmission(cmd.Context(), roomID, userID)
			if err != nil {
				return err
			}

			var text string
			switch adm.Outcome {
			case reconcile.OutcomeApproved:
				text = SuccessStyle.Render("You're in.")
			case reconcile.OutcomeRoomEnded:
				text = WarningStyle.Render("The meeting has ended.")
			case reconcile.OutcomeRemoved:
				text = WarningStyle.Render("You are no longer in this room.")
			}
			if err := a.print(out, map[string]any{"outcome": adm.Outcome.String(), "user": adm.User}, text); err != nil {
				return err
			}
			if adm.Outcome != reconcile.OutcomeApproved || !call.enabled {
				return nil
			}
			return runCall(cmd.Context(), a, out, call, roomID, userID, false)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&leave, "leave-on-cancel", true, "remove the waiting entry when interrupted")
	addCallFlags(a, cmd, &call)
	return cmd
}

func addCallFlags(a *app, cmd *cobra.Command, call *callFlags) {
	f := cmd.Flags()
	f.BoolVar(&call.enabled, "call", false, "start the call session once admitted")
	f.StringVar(&call.signalURL, "signal-url", a.cfg.Call.SignalURL, "call signaling URL (default: the server's /api/ws/signal)")
	f.StringSliceVar(&call.iceServers, "ice", a.cfg.Call.ICEServers, "ICE server URLs")
	f.StringVar(&call.token, "token", "", "access token from create/join")
	f.StringVar(&call.name, "name", "", "display name in the call")
}

// runCall joins the call with a silent audio track and prints membership
// changes until ctx is done.
func runCall(ctx context.Context, a *app, out io.Writer, call callFlags, roomID domain.RoomID, userID domain.UserID, host bool) error {
	signalURL, err := a.signalURL(call.signalURL)
	if err != nil {
		return err
	}
	sess := rtc.NewSession(rtc.Options{
		SignalURL:  signalURL,
		ICEServers: call.iceServers,
		UserID:     userID,
		Name:       call.name,
		Token:      call.token,
	})
	audio, err := rtc.NewAudioTrack(string(userID))
	if err != nil {
		return err
	}

	media := core.LocalMedia{Audio: audio}
	if host {
		err = sess.Start(ctx, roomID, media)
	} else {
		err = sess.Join(ctx, roomID, media)
	}
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rtc.PublishSilence(gctx, audio) })
	g.Go(func() error {
		defer func() {
			if err := sess.End(context.Background()); err != nil {
				log.Warn().Err(err).Str("module", "cli").Msg("end call")
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-sess.Events():
				if !ok {
					return nil
				}
				fmt.Fprintln(out, callEventLine(ev))
				if ev.Type == core.CallError {
					return errors.New(ev.Err)
				}
			}
		}
	})
	return g.Wait()
}

func callEventLine(ev core.CallEvent) string {
	switch ev.Type {
	case core.CallMemberJoined:
		return SuccessStyle.Render("+ " + ev.Name + " joined the call")
	case core.CallMemberLeft:
		return MutedStyle.Render("- " + ev.Name + " left the call")
	case core.CallRoomState:
		return fmt.Sprintf("%d in call", ev.Members)
	case core.CallTrackAdded:
		return MutedStyle.Render("receiving " + ev.Kind)
	case core.CallError:
		return ErrorStyle.Render("call error: " + ev.Err)
	default:
		return string(ev.Type)
	}
}

func newHostCmd(a *app) *cobra.Command {
	var (
		autoApprove bool
		call        callFlags
	)
	cmd := &cobra.Command{
		Use:   "host <room> [identity]",
		Short: "Watch the waiting list as the host",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID := domain.RoomID(args[0])
			out := cmd.OutOrStdout()
			p := a.poller()

			// Writes from the watch loops interleave otherwise.
			var mu sync.Mutex
			emit := func(v any, text string) error {
				mu.Lock()
				defer mu.Unlock()
				return a.print(out, v, text)
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				seen := map[domain.UserID]bool{}
				return p.WatchWaitingList(ctx, roomID, func(list []domain.Participant) error {
					fresh := false
					for _, w := range list {
						if !seen[w.ID] {
							seen[w.ID], fresh = true, true
						}
					}
					if fresh {
						if err := emit(list, TitleStyle.Render("Waiting room")+"\n"+participantTable(list)); err != nil {
							return err
						}
					}
					if !autoApprove {
						return nil
					}
					for _, w := range list {
						approved, err := p.Client.ApproveUser(ctx, roomID, w.ID)
						if err != nil {
							// Someone else approved or the user left.
							log.Warn().Err(err).Str("module", "cli").Str("user", string(w.ID)).Msg("auto approve")
							continue
						}
						if err := emit(approved, SuccessStyle.Render("Approved "+approved.Name)); err != nil {
							return err
						}
					}
					return nil
				})
			})
			g.Go(func() error {
				last := -1
				return p.WatchRoom(ctx, roomID, func(st core.RoomStatus) {
					if st.ParticipantCount != last {
						last = st.ParticipantCount
						_ = emit(st, MutedStyle.Render(fmt.Sprintf("%d in room, %d waiting", st.ParticipantCount, st.WaitingCount)))
					}
				})
			})
			if call.enabled && len(args) == 2 {
				g.Go(func() error {
					return runCall(ctx, a, out, call, roomID, domain.UserID(args[1]), true)
				})
			}

			err := g.Wait()
			if errors.Is(err, reconcile.ErrRoomEnded) {
				return emit(map[string]string{"outcome": "room_ended"}, WarningStyle.Render("The meeting has ended."))
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "approve everyone who joins the waiting list")
	addCallFlags(a, cmd, &call)
	return cmd
}
