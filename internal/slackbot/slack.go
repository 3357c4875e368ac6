package slackbot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/slack-go/slack"
)

const responseInChannel = "in_channel"

// SlackChat implements Chat on top of the Slack Web API.
type SlackChat struct {
	api *slack.Client
}

// NewSlackChat wraps api.
func NewSlackChat(api *slack.Client) *SlackChat {
	return &SlackChat{api: api}
}

// Respond posts text to a slash command's response URL, visible to the channel.
func (s *SlackChat) Respond(ctx context.Context, responseURL, text string) error {
	if responseURL == "" {
		return fmt.Errorf("command has no response url")
	}
	return slack.PostWebhookContext(ctx, responseURL, &slack.WebhookMessage{
		Text:         text,
		ResponseType: responseInChannel,
	})
}

// PostMessage posts plain text to a channel.
func (s *SlackChat) PostMessage(ctx context.Context, channelID, text string) error {
	_, _, err := s.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	return err
}

// UploadFile shares the file at path in the channel.
func (s *SlackChat) UploadFile(ctx context.Context, channelID, path, title string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	_, err = s.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		File:     path,
		FileSize: int(info.Size()),
		Filename: filepath.Base(path),
		Title:    title,
		Channel:  channelID,
	})
	return err
}

// DownloadFile fetches a private file URL with the bot token as bearer credential.
func (s *SlackChat) DownloadFile(ctx context.Context, url string, w io.Writer) error {
	return s.api.GetFileContext(ctx, url, w)
}
