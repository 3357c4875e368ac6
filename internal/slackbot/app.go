package slackbot

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/hpungsan/thingbot/internal/logging"
	"github.com/hpungsan/thingbot/internal/metrics"
	"github.com/hpungsan/thingbot/internal/ops"
)

// NewAPI builds a Slack Web API client able to open a socket-mode connection.
// SDK logs go to logger.
func NewAPI(botToken, appToken string, debug bool, logger *zap.Logger) *slack.Client {
	opts := []slack.Option{
		slack.OptionAppLevelToken(appToken),
		slack.OptionLog(zap.NewStdLog(logging.OrNop(logger).Named("slack"))),
	}
	if debug {
		opts = append(opts, slack.OptionDebug(true))
	}
	return slack.New(botToken, opts...)
}

// AppConfig configures the socket-mode listener.
type AppConfig struct {
	Command   string // slash command, e.g. "/thing"
	QueueSize int
	Debug     bool
}

// App receives events over socket mode, acknowledges them and feeds them to
// the handlers through a single-worker queue.
type App struct {
	client    *socketmode.Client
	handlers  *Handlers
	config    AppConfig
	queue     *queue
	metrics   *metrics.Metrics
	logger    *zap.Logger
	connected atomic.Bool
}

// NewApp wires a socket-mode client around api.
func NewApp(api *slack.Client, handlers *Handlers, config AppConfig, m *metrics.Metrics, logger *zap.Logger) *App {
	logger = logging.OrNop(logger)
	client := socketmode.New(api,
		socketmode.OptionDebug(config.Debug),
		socketmode.OptionLog(zap.NewStdLog(logger.Named("socketmode"))),
	)
	return &App{
		client:   client,
		handlers: handlers,
		config:   config,
		queue:    newQueue(config.QueueSize, logger),
		metrics:  m,
		logger:   logger,
	}
}

// Connected reports whether the socket-mode connection is up.
func (a *App) Connected() bool { return a.connected.Load() }

// Run listens until ctx is cancelled. The event in progress at shutdown is
// finished before Run returns.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := socketmode.NewSocketmodeHandler(a.client)
	h.Handle(socketmode.EventTypeConnecting, a.onConnectionState)
	h.Handle(socketmode.EventTypeConnected, a.onConnectionState)
	h.Handle(socketmode.EventTypeConnectionError, a.onConnectionState)
	h.Handle(socketmode.EventTypeDisconnect, a.onConnectionState)
	h.HandleSlashCommand(a.config.Command, a.onSlashCommand)
	h.HandleEvents(slackevents.Message, a.onMessage)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.queue.run(runCtx)
	}()

	a.logger.Info("listening for slack events", zap.String("command", a.config.Command))
	err := h.RunEventLoopContext(runCtx)

	cancel()
	wg.Wait()

	if err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) onConnectionState(evt *socketmode.Event, _ *socketmode.Client) {
	switch evt.Type {
	case socketmode.EventTypeConnected:
		a.connected.Store(true)
		a.logger.Info("connected to slack")
	case socketmode.EventTypeConnecting:
		a.logger.Info("connecting to slack")
	default:
		a.connected.Store(false)
		a.logger.Warn("slack connection lost", zap.String("event", string(evt.Type)))
	}
}

func (a *App) onSlashCommand(evt *socketmode.Event, c *socketmode.Client) {
	if evt.Request != nil {
		c.Ack(*evt.Request)
	}

	sc, ok := evt.Data.(slack.SlashCommand)
	if !ok {
		a.logger.Warn("unexpected slash command payload")
		return
	}
	cmd := commandFrom(sc)
	ok = a.queue.enqueue(job{
		name: "command",
		run:  func(ctx context.Context) { a.handlers.HandleThingCommand(ctx, cmd) },
	})
	if !ok {
		a.metrics.ObserveEvent(metrics.KindCommand, metrics.OutcomeDropped)
	}
}

func (a *App) onMessage(evt *socketmode.Event, c *socketmode.Client) {
	if evt.Request != nil {
		c.Ack(*evt.Request)
	}

	ev, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		a.logger.Warn("unexpected events api payload")
		return
	}
	me, ok := ev.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	msg := messageFrom(me)
	ok = a.queue.enqueue(job{
		name: "message",
		run:  func(ctx context.Context) { a.handlers.HandleMessage(ctx, msg) },
	})
	if !ok {
		a.metrics.ObserveEvent(metrics.KindMessage, metrics.OutcomeDropped)
	}
}

func commandFrom(sc slack.SlashCommand) Command {
	return Command{
		Text:        sc.Text,
		UserID:      sc.UserID,
		ChannelID:   sc.ChannelID,
		ResponseURL: sc.ResponseURL,
	}
}

func messageFrom(me *slackevents.MessageEvent) Message {
	msg := Message{
		ChannelID: me.Channel,
		UserID:    me.User,
		BotID:     me.BotID,
	}
	for _, f := range me.Files {
		msg.Files = append(msg.Files, ops.Attachment{
			Name:        f.Name,
			Filetype:    f.Filetype,
			DownloadURL: f.URLPrivateDownload,
		})
	}
	return msg
}
