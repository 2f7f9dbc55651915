package botcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/quailyquaily/slackpm/internal/configutil"
	"github.com/quailyquaily/slackpm/internal/dashboard"
	"github.com/quailyquaily/slackpm/internal/drain"
	"github.com/quailyquaily/slackpm/internal/ingest"
	"github.com/quailyquaily/slackpm/internal/logutil"
	"github.com/quailyquaily/slackpm/internal/nlp"
	"github.com/quailyquaily/slackpm/internal/security"
	"github.com/quailyquaily/slackpm/internal/taskstore"
)

func New() *cobra.Command {
	return newBotCmd()
}

type botRuntime struct {
	log      *slog.Logger
	api      *slackAPI
	queue    *ingest.Queue
	store    *taskstore.Store
	security *security.Manager

	botUserID       string
	allowedTeams    map[string]bool
	allowedChannels map[string]bool
}

func newBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the task-extraction bot with Socket Mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			botToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-token", "slack.bot_token"))
			if botToken == "" {
				return fmt.Errorf("missing slack.bot_token (set via --slack-bot-token or SLACKPM_SLACK_BOT_TOKEN)")
			}
			appToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-app-token", "slack.app_token"))
			if appToken == "" {
				return fmt.Errorf("missing slack.app_token (set via --slack-app-token or SLACKPM_SLACK_APP_TOKEN)")
			}

			logger, err := logutil.FromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			queue := ingest.NewQueue()
			store := taskstore.New()
			pipe := nlp.New(nlp.Options{})

			drainCfg := drain.DefaultConfig()
			if tick := configutil.FlagOrViperDuration(cmd, "drain-tick", "drain.tick"); tick > 0 {
				drainCfg.Tick = tick
			}
			if flush := configutil.FlagOrViperDuration(cmd, "metrics-flush-interval", "drain.flush_interval"); flush > 0 {
				drainCfg.FlushInterval = flush
			}
			drainer, err := drain.New(queue, store, pipe, drainCfg, logger)
			if err != nil {
				return err
			}

			sec := security.NewManager(security.Options{
				Token:  botToken,
				Store:  store,
				Logger: logger,
			})

			httpClient := &http.Client{Timeout: 30 * time.Second}
			api := newSlackAPI(httpClient, "https://slack.com/api", botToken, appToken)
			auth, err := api.authTest(cmd.Context())
			if err != nil {
				return fmt.Errorf("slack auth.test: %w", err)
			}
			botUserID := strings.TrimSpace(auth.UserID)
			if botUserID == "" {
				return fmt.Errorf("slack auth.test returned empty user_id")
			}

			allowedTeams := toAllowlist(configutil.FlagOrViperStringArray(cmd, "slack-allowed-team-id", "slack.allowed_team_ids"))
			allowedChannels := toAllowlist(configutil.FlagOrViperStringArray(cmd, "slack-allowed-channel-id", "slack.allowed_channel_ids"))
			if len(allowedTeams) == 0 && strings.TrimSpace(auth.TeamID) != "" {
				allowedTeams[strings.TrimSpace(auth.TeamID)] = true
			}

			dashboardListen := strings.TrimSpace(configutil.FlagOrViperString(cmd, "dashboard-listen", "dashboard.listen"))
			if dashboardListen != "" {
				admins := configutil.FlagOrViperStringArray(cmd, "admin-user-id", "dashboard.admin_user_ids")
				mux := http.NewServeMux()
				dashboard.RegisterRoutes(mux, dashboard.Options{
					Admins:   admins,
					Store:    store,
					Metrics:  drainer,
					Security: sec,
					Logger:   logger,
				})
				srv := &http.Server{Addr: dashboardListen, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Warn("dashboard_server_error", "addr", dashboardListen, "error", err.Error())
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					_ = srv.Shutdown(shutdownCtx)
					cancel()
				}()
				logger.Info("dashboard_listen", "addr", dashboardListen, "admins", len(admins))
			}

			drainer.Start(cmd.Context())
			defer drainer.Wait()

			rt := &botRuntime{
				log:             logger,
				api:             api,
				queue:           queue,
				store:           store,
				security:        sec,
				botUserID:       botUserID,
				allowedTeams:    allowedTeams,
				allowedChannels: allowedChannels,
			}

			logger.Info("bot_start",
				"bot_user_id", botUserID,
				"allowed_team_ids", len(allowedTeams),
				"allowed_channel_ids", len(allowedChannels),
				"drain_tick", drainCfg.Tick.String(),
				"flush_interval", drainCfg.FlushInterval.String(),
			)

			return rt.runSocketLoop(cmd.Context())
		},
	}

	cmd.Flags().String("slack-bot-token", "", "Slack bot token (xoxb-...).")
	cmd.Flags().String("slack-app-token", "", "Slack app-level token for Socket Mode (xapp-...).")
	cmd.Flags().StringArray("slack-allowed-team-id", nil, "Allowed Slack team id(s). If empty, defaults to the bot's home team.")
	cmd.Flags().StringArray("slack-allowed-channel-id", nil, "Allowed Slack channel id(s). If empty, allows all channels in allowed teams.")
	cmd.Flags().Duration("drain-tick", time.Second, "Drain loop tick period.")
	cmd.Flags().Duration("metrics-flush-interval", time.Minute, "Interval between metrics snapshots.")
	cmd.Flags().String("dashboard-listen", "127.0.0.1:3001", "Admin dashboard listen address (empty disables).")
	cmd.Flags().StringArray("admin-user-id", nil, "Slack user id(s) allowed to view the admin dashboard.")

	return cmd
}

func (rt *botRuntime) runSocketLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			rt.log.Info("bot_stop", "reason", "context_canceled")
			return nil
		}
		conn, err := rt.api.connectSocket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				rt.log.Info("bot_stop", "reason", "context_canceled")
				return nil
			}
			rt.log.Warn("slack_socket_connect_error", "error", err.Error())
			if err := sleepWithContext(ctx, 2*time.Second); err != nil {
				return nil
			}
			continue
		}
		rt.log.Info("slack_socket_connected")
		readErr := consumeSocket(ctx, conn, func(envelope socketEnvelope) error {
			event, ok, err := parseSocketEnvelope(envelope, rt.botUserID)
			if err != nil {
				rt.log.Warn("slack_envelope_parse_error", "error", err.Error())
				return nil
			}
			if !ok {
				return nil
			}
			rt.handleEvent(ctx, event)
			return nil
		})
		_ = conn.Close()
		if readErr != nil && !errors.Is(readErr, context.Canceled) && !errors.Is(readErr, context.DeadlineExceeded) {
			rt.log.Warn("slack_socket_read_error", "error", readErr.Error())
		}
	}
}

func consumeSocket(ctx context.Context, conn *websocket.Conn, onEnvelope func(envelope socketEnvelope) error) error {
	if conn == nil {
		return fmt.Errorf("slack websocket connection is nil")
	}
	for {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var envelope socketEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		if strings.TrimSpace(envelope.EnvelopeID) != "" {
			if err := conn.WriteJSON(map[string]string{"envelope_id": envelope.EnvelopeID}); err != nil {
				return err
			}
		}
		if onEnvelope == nil {
			continue
		}
		if err := onEnvelope(envelope); err != nil {
			return err
		}
	}
}

func (rt *botRuntime) handleEvent(ctx context.Context, event botEvent) {
	switch event.Kind {
	case eventMessage:
		if !rt.allowed(event) {
			return
		}
		rt.queue.Enqueue(ingest.Message{
			Text:     event.Text,
			User:     event.UserID,
			Channel:  event.ChannelID,
			TS:       event.MessageTS,
			ThreadTS: event.ThreadTS,
		})
		rt.log.Debug("message_enqueued",
			"channel", event.ChannelID,
			"ts", event.MessageTS,
			"user", event.UserID,
			"backlog_depth", rt.queue.Size(),
		)

	case eventAppMention:
		if !rt.allowed(event) {
			return
		}
		greeting := fmt.Sprintf("Hi <@%s>, how can I help you manage your tasks today?", event.UserID)
		if err := rt.api.postMessage(ctx, event.ChannelID, greeting, event.ThreadTS); err != nil {
			rt.log.Warn("slack_post_message_error", "channel", event.ChannelID, "error", err.Error())
		}

	case eventHomeOpened:
		view := buildHomeView(tasksForOwner(rt.store, event.UserID))
		if err := rt.api.viewsPublish(ctx, event.UserID, view); err != nil {
			rt.log.Warn("slack_views_publish_error", "user", event.UserID, "error", err.Error())
		}

	case eventMarkDone:
		rt.handleMarkDone(ctx, event)
	}
}

// handleMarkDone is the one external status mutation: read the record, set
// status, write it back.
func (rt *botRuntime) handleMarkDone(ctx context.Context, event botEvent) {
	channel, ts, err := parseMarkDoneValue(event.ActionValue)
	if err != nil {
		rt.log.Warn("mark_done_value_error", "value", event.ActionValue, "error", err.Error())
		return
	}
	md, ok := rt.store.Get(channel, ts)
	if !ok {
		rt.log.Warn("mark_done_record_missing", "channel", channel, "ts", ts)
		return
	}
	md.Status = taskstore.StatusDone
	rt.store.Save(channel, ts, md)
	rt.security.LogAccess(event.UserID, "MARK_DONE", map[string]any{"channel": channel, "ts": ts})
	rt.log.Info("task_marked_done", "channel", channel, "ts", ts, "user", event.UserID)

	if err := rt.api.viewsPublish(ctx, event.UserID, markDoneConfirmationView()); err != nil {
		rt.log.Warn("slack_views_publish_error", "user", event.UserID, "error", err.Error())
	}
}

func (rt *botRuntime) allowed(event botEvent) bool {
	if len(rt.allowedTeams) > 0 && !rt.allowedTeams[event.TeamID] {
		return false
	}
	if len(rt.allowedChannels) > 0 && !rt.allowedChannels[event.ChannelID] {
		return false
	}
	return true
}

func toAllowlist(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, raw := range items {
		item := strings.TrimSpace(raw)
		if item != "" {
			out[item] = true
		}
	}
	return out
}
