package config

import (
	"strings"

	"github.com/hpungsan/thingbot/internal/errors"
)

// Environment variables holding the bot's secrets.
const (
	EnvSlackBotToken    = "SLACK_BOT_TOKEN"
	EnvSlackAppToken    = "SLACK_APP_TOKEN"
	EnvThingiverseToken = "THINGIVERSE_TOKEN"
)

// Credentials are the three secrets the bot cannot start without.
type Credentials struct {
	SlackBotToken    string
	SlackAppToken    string
	ThingiverseToken string
}

// LoadCredentials reads the secrets through getenv (os.Getenv in production).
// The first missing value yields a MISSING_TOKEN error naming the variable.
func LoadCredentials(getenv func(string) string) (*Credentials, error) {
	creds := &Credentials{}
	fields := []struct {
		env string
		dst *string
	}{
		{EnvSlackBotToken, &creds.SlackBotToken},
		{EnvSlackAppToken, &creds.SlackAppToken},
		{EnvThingiverseToken, &creds.ThingiverseToken},
	}

	for _, f := range fields {
		v := strings.TrimSpace(getenv(f.env))
		if v == "" {
			return nil, errors.NewMissingToken(f.env)
		}
		*f.dst = v
	}

	return creds, nil
}
