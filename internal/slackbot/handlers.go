// Package slackbot turns Slack slash commands and file-share messages into
// rendered previews posted back to the originating channel.
package slackbot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/thingbot/internal/errors"
	"github.com/hpungsan/thingbot/internal/logging"
	"github.com/hpungsan/thingbot/internal/metrics"
	"github.com/hpungsan/thingbot/internal/ops"
	"github.com/hpungsan/thingbot/internal/workspace"
)

// User-facing replies.
const (
	MsgForgotThing = "you forgot to post a thing!"
	MsgNoSTLs      = "there were no stls found on this thing"
	msgAskedFor    = "<@%s> asked for thing: %s"
)

const workspacePrefix = "thingbot"

// Chat is the slice of the Slack API the handlers use.
// *SlackChat implements it.
type Chat interface {
	ops.FileDownloader
	// Respond replies to a slash command through its response URL.
	Respond(ctx context.Context, responseURL, text string) error
	PostMessage(ctx context.Context, channelID, text string) error
	UploadFile(ctx context.Context, channelID, path, title string) error
}

// Command is an inbound /thing invocation.
type Command struct {
	Text        string
	UserID      string
	ChannelID   string
	ResponseURL string
}

// Message is an inbound channel message.
type Message struct {
	ChannelID string
	UserID    string
	BotID     string
	Files     []ops.Attachment
}

// Deps are the collaborators shared by every handler invocation.
type Deps struct {
	Chat          Chat
	Source        ops.ModelSource
	Renderer      ops.Renderer
	WorkspaceRoot string // os.TempDir() when empty
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

// Handlers processes commands and messages one at a time.
type Handlers struct {
	chat     Chat
	source   ops.ModelSource
	renderer ops.Renderer
	root     string
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewHandlers wires the handlers. Renders are recorded in d.Metrics.
func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		chat:     d.Chat,
		source:   d.Source,
		renderer: ops.InstrumentRenderer(d.Renderer, d.Metrics),
		root:     d.WorkspaceRoot,
		metrics:  d.Metrics,
		logger:   logging.OrNop(d.Logger),
	}
}

// HandleThingCommand fetches the thing named by cmd.Text from Thingiverse and
// uploads a preview of each of its STL files to cmd.ChannelID.
func (h *Handlers) HandleThingCommand(ctx context.Context, cmd Command) {
	log := h.logger.With(zap.String("user", cmd.UserID), zap.String("channel", cmd.ChannelID))

	thingID := strings.TrimSpace(cmd.Text)
	if thingID == "" {
		log.Debug("thing command without arguments")
		h.respond(ctx, log, cmd.ResponseURL, MsgForgotThing)
		h.metrics.ObserveEvent(metrics.KindCommand, metrics.OutcomeInvalid)
		return
	}

	log = log.With(zap.String("thing_id", thingID))
	log.Info("thing requested")
	h.respond(ctx, log, cmd.ResponseURL, fmt.Sprintf(msgAskedFor, cmd.UserID, thingID))

	n, err := h.previewThing(ctx, log, cmd.ChannelID, thingID)
	switch {
	case err != nil:
		h.logFailure(log, err)
		h.respond(ctx, log, cmd.ResponseURL, errors.UserMessage(err))
		h.metrics.ObserveEvent(metrics.KindCommand, metrics.OutcomeFor(err))
	case n == 0:
		log.Info("thing has no stls")
		h.respond(ctx, log, cmd.ResponseURL, MsgNoSTLs)
		h.metrics.ObserveEvent(metrics.KindCommand, metrics.OutcomeEmpty)
	default:
		log.Info("thing previews uploaded", zap.Int("count", n))
		h.metrics.ObserveEvent(metrics.KindCommand, metrics.OutcomeUploaded)
	}
}

func (h *Handlers) previewThing(ctx context.Context, log *zap.Logger, channelID, thingID string) (int, error) {
	ws, err := h.acquire(log)
	if err != nil {
		return 0, err
	}
	defer h.release(log, ws)

	previews, err := ops.PreviewThing(ctx, h.source, h.renderer, ws, thingID)
	if err != nil {
		return 0, err
	}
	return len(previews), h.upload(ctx, log, channelID, previews)
}

// HandleMessage renders the STL attachments of msg and uploads the previews
// to msg.ChannelID. Messages without STL attachments are ignored silently.
func (h *Handlers) HandleMessage(ctx context.Context, msg Message) {
	log := h.logger.With(zap.String("user", msg.UserID), zap.String("channel", msg.ChannelID))

	if len(msg.Files) == 0 {
		log.Debug("message without files")
		h.metrics.ObserveEvent(metrics.KindMessage, metrics.OutcomeIgnored)
		return
	}
	if msg.BotID != "" {
		log.Debug("ignoring message from bot", zap.String("bot_id", msg.BotID))
		h.metrics.ObserveEvent(metrics.KindMessage, metrics.OutcomeIgnored)
		return
	}

	models := ops.SelectModels(msg.Files)
	if len(models) == 0 {
		log.Info("no stls were attached", zap.Int("files", len(msg.Files)))
		h.metrics.ObserveEvent(metrics.KindMessage, metrics.OutcomeEmpty)
		return
	}
	for _, m := range models {
		log.Info("found stl in attachment", zap.String("name", m.Name))
	}

	if err := h.previewAttachments(ctx, log, msg.ChannelID, models); err != nil {
		h.logFailure(log, err)
		if perr := h.chat.PostMessage(ctx, msg.ChannelID, errors.UserMessage(err)); perr != nil {
			log.Error("post failure message", zap.Error(perr))
		}
		h.metrics.ObserveEvent(metrics.KindMessage, metrics.OutcomeFor(err))
		return
	}
	log.Info("attachment previews uploaded", zap.Int("count", len(models)))
	h.metrics.ObserveEvent(metrics.KindMessage, metrics.OutcomeUploaded)
}

func (h *Handlers) previewAttachments(ctx context.Context, log *zap.Logger, channelID string, models []ops.Attachment) error {
	ws, err := h.acquire(log)
	if err != nil {
		return err
	}
	defer h.release(log, ws)

	previews, err := ops.PreviewAttachments(ctx, h.chat, h.renderer, ws, models)
	if err != nil {
		return err
	}
	return h.upload(ctx, log, channelID, previews)
}

// upload posts the previews in order and stops at the first failure.
func (h *Handlers) upload(ctx context.Context, log *zap.Logger, channelID string, previews []ops.Preview) error {
	for _, p := range previews {
		name := filepath.Base(p.Image)
		log.Debug("sending preview", zap.String("image", name), zap.String("model", filepath.Base(p.Model)))

		err := h.chat.UploadFile(ctx, channelID, p.Image, filepath.Base(p.Model))
		h.metrics.ObserveUpload(err)
		if err != nil {
			return errors.NewUploadFailed(name, err)
		}
	}
	return nil
}

func (h *Handlers) acquire(log *zap.Logger) (*workspace.Workspace, error) {
	ws, err := workspace.Acquire(h.root, workspacePrefix)
	if err != nil {
		return nil, err
	}
	log.Debug("created workspace", zap.String("dir", ws.Dir()))
	return ws, nil
}

func (h *Handlers) release(log *zap.Logger, ws *workspace.Workspace) {
	if err := ws.Release(); err != nil {
		log.Warn("release workspace", zap.String("dir", ws.Dir()), zap.Error(err))
	}
}

func (h *Handlers) respond(ctx context.Context, log *zap.Logger, responseURL, text string) {
	if err := h.chat.Respond(ctx, responseURL, text); err != nil {
		log.Error("respond to command", zap.Error(err))
	}
}

func (h *Handlers) logFailure(log *zap.Logger, err error) {
	code := errors.CodeOf(err)
	if code == errors.ErrInvalidThing {
		log.Info("invalid thing", zap.Error(err))
		return
	}
	log.Error("preview failed", zap.String("code", string(code)), zap.Error(err))
}
