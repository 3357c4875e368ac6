package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/thingbot/internal/config"
	"github.com/hpungsan/thingbot/internal/errors"
	"github.com/hpungsan/thingbot/internal/logging"
	"github.com/hpungsan/thingbot/internal/mcp"
	"github.com/hpungsan/thingbot/internal/metrics"
	"github.com/hpungsan/thingbot/internal/ops"
	"github.com/hpungsan/thingbot/internal/render"
	"github.com/hpungsan/thingbot/internal/slackbot"
	"github.com/hpungsan/thingbot/internal/thingiverse"
	"github.com/hpungsan/thingbot/internal/web"
	"github.com/hpungsan/thingbot/internal/workspace"
)

// cliEnv is everything the commands take from the process.
// Tests substitute each field.
type cliEnv struct {
	getenv func(string) string
	stdout io.Writer
	run    render.Runner // nil runs openscad
	logger *zap.Logger   // nil builds one from config
}

// state is filled in by the app's Before hook.
type state struct {
	env    cliEnv
	cfg    *config.Config
	logger *zap.Logger
}

// newCLIApp creates the CLI application with all commands.
// Running without a command starts the Slack bot.
func newCLIApp(env cliEnv) *cli.App {
	st := &state{env: env}
	app := &cli.App{
		Name:    "thingbot",
		Usage:   "Slack bot that posts OpenSCAD previews of Thingiverse things and STL uploads",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Usage: "Directory holding config.json (default ~/.thingbot)"},
			&cli.StringFlag{Name: "log-level", Usage: "Override the configured log level"},
		},
		Before: st.setup,
		After:  st.teardown,
		Action: st.serve,
		Commands: []*cli.Command{
			serveCmd(st),
			renderCmd(st),
			thingCmd(st),
			mcpCmd(st),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func (s *state) setup(c *cli.Context) error {
	dir := c.String("config-dir")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return outputError(errors.NewInternal(fmt.Errorf("could not determine home directory: %w", err)))
		}
		dir = filepath.Join(home, ".thingbot")
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return outputError(errors.NewInvalidRequest(fmt.Sprintf("failed to load config: %v", err)))
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	s.cfg = cfg

	if s.env.logger != nil {
		s.logger = s.env.logger
		return nil
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return outputError(errors.NewInvalidRequest(err.Error()))
	}
	s.logger = logger
	return nil
}

func (s *state) teardown(_ *cli.Context) error {
	if s.logger != nil {
		_ = s.logger.Sync()
	}
	return nil
}

func serveCmd(s *state) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Connect to Slack over socket mode and answer /thing and STL uploads (default)",
		Action: s.serve,
	}
}

// serve runs the bot until SIGINT or SIGTERM.
func (s *state) serve(c *cli.Context) error {
	creds, err := config.LoadCredentials(s.env.getenv)
	if err != nil {
		s.logMissingToken(err)
		return outputError(err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	api := slackbot.NewAPI(creds.SlackBotToken, creds.SlackAppToken, s.cfg.SlackDebug, s.logger)
	handlers := slackbot.NewHandlers(slackbot.Deps{
		Chat:          slackbot.NewSlackChat(api),
		Source:        s.thingiverse(creds.ThingiverseToken),
		Renderer:      s.renderer(),
		WorkspaceRoot: s.cfg.WorkspaceRoot,
		Metrics:       m,
		Logger:        s.logger,
	})
	bot := slackbot.NewApp(api, handlers, slackbot.AppConfig{
		Command:   s.cfg.Command,
		QueueSize: s.cfg.QueueSize,
		Debug:     s.cfg.SlackDebug,
	}, m, s.logger)

	if s.cfg.MetricsAddr != "" {
		srv := web.NewServer(s.cfg.MetricsAddr, reg, bot.Connected)
		go func() {
			if err := web.Run(ctx, srv, s.logger); err != nil {
				s.logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	s.logger.Info("starting thingbot", zap.String("version", Version))
	if err := bot.Run(ctx); err != nil {
		return outputError(errors.NewInternal(err))
	}
	s.logger.Info("thingbot stopped")
	return nil
}

func renderCmd(s *state) *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render a local STL file to PNG",
		ArgsUsage: "<file.stl>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: ".", Usage: "Directory to write the preview to"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one STL file is required"))
			}
			path := c.Args().First()
			if err := ops.ValidateModelPath(path); err != nil {
				return outputError(err)
			}
			if err := ops.ValidateOutputDir(c.String("out")); err != nil {
				return outputError(err)
			}

			return s.withWorkspace(func(ws *workspace.Workspace) error {
				model, err := ops.ImportFile(ws, path)
				if err != nil {
					return err
				}
				previews, err := ops.RenderModels(c.Context, s.renderer(), ws, []string{model})
				if err != nil {
					return err
				}
				return s.export(previews, c.String("out"))
			})
		},
	}
}

func thingCmd(s *state) *cli.Command {
	return &cli.Command{
		Name:      "thing",
		Usage:     "Download a Thingiverse thing and render each of its STL files",
		ArgsUsage: "<thing-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: ".", Usage: "Directory to write the previews to"},
		},
		Action: func(c *cli.Context) error {
			thingID := strings.TrimSpace(c.Args().First())
			if thingID == "" {
				return outputError(errors.NewInvalidRequest("you forgot to post a thing!"))
			}
			token, err := s.thingiverseToken()
			if err != nil {
				return outputError(err)
			}
			if err := ops.ValidateOutputDir(c.String("out")); err != nil {
				return outputError(err)
			}

			return s.withWorkspace(func(ws *workspace.Workspace) error {
				previews, err := ops.PreviewThing(c.Context, s.thingiverse(token), s.renderer(), ws, thingID)
				if err != nil {
					return err
				}
				if len(previews) == 0 {
					return errors.NewInvalidRequest("there were no stls found on this thing")
				}
				return s.export(previews, c.String("out"))
			})
		},
	}
}

func mcpCmd(s *state) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve thing_preview and stl_preview as MCP tools over stdio",
		Action: func(c *cli.Context) error {
			token, err := s.thingiverseToken()
			if err != nil {
				return outputError(err)
			}
			if unknown := mcp.ValidateDisabledTools(s.cfg.DisabledTools); len(unknown) > 0 {
				s.logger.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
			}

			h := mcp.NewHandlers(s.thingiverse(token), s.renderer(), s.cfg.WorkspaceRoot, s.logger)
			if err := mcp.Run(h, s.cfg.DisabledTools, Version); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// previewOutput is printed by render and thing.
type previewOutput struct {
	Previews []previewFile `json:"previews"`
}

type previewFile struct {
	Model string `json:"model"`
	Image string `json:"image"`
}

// withWorkspace runs fn in a fresh workspace and reports its error the CLI way.
func (s *state) withWorkspace(fn func(ws *workspace.Workspace) error) error {
	ws, err := workspace.Acquire(s.cfg.WorkspaceRoot, "thingbot-cli")
	if err != nil {
		return outputError(err)
	}
	defer func() {
		if err := ws.Release(); err != nil {
			s.logger.Warn("release workspace", zap.Error(err))
		}
	}()

	if err := fn(ws); err != nil {
		return outputError(err)
	}
	return nil
}

func (s *state) export(previews []ops.Preview, outDir string) error {
	paths, err := ops.ExportPreviews(previews, outDir)
	if err != nil {
		return err
	}
	out := previewOutput{Previews: make([]previewFile, 0, len(paths))}
	for i, p := range paths {
		out.Previews = append(out.Previews, previewFile{Model: filepath.Base(previews[i].Model), Image: p})
	}
	return s.outputJSON(out)
}

func (s *state) thingiverse(token string) *thingiverse.Client {
	return thingiverse.NewClient(thingiverse.Config{
		BaseURL: s.cfg.ThingiverseBaseURL,
		Token:   token,
		Timeout: s.cfg.HTTPTimeout(),
	}, s.logger)
}

func (s *state) renderer() *render.OpenSCAD {
	return render.NewOpenSCAD(render.Config{
		OpenSCADPath: s.cfg.OpenSCADPath,
		Width:        s.cfg.ImageWidth,
		Height:       s.cfg.ImageHeight,
		ColorScheme:  s.cfg.ColorScheme,
		MaxSize:      s.cfg.PreviewMaxSize,
	}, s.env.run, s.logger)
}

func (s *state) thingiverseToken() (string, error) {
	token := strings.TrimSpace(s.env.getenv(config.EnvThingiverseToken))
	if token == "" {
		err := errors.NewMissingToken(config.EnvThingiverseToken)
		s.logMissingToken(err)
		return "", err
	}
	return token, nil
}

func (s *state) logMissingToken(err error) {
	var botErr *errors.BotError
	if stderrors.As(err, &botErr) && botErr.Code == errors.ErrMissingToken {
		s.logger.Error("missing credential", zap.Any("env", botErr.Details["env"]))
		return
	}
	s.logger.Error("could not load credentials", zap.Error(err))
}

// outputJSON writes v as indented JSON.
func (s *state) outputJSON(v any) error {
	enc := json.NewEncoder(s.env.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var botErr *errors.BotError
	if stderrors.As(err, &botErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", botErr.Code, botErr.Message), 1)
	}
	if stderrors.Is(err, context.Canceled) {
		return cli.Exit("interrupted", 130)
	}
	return cli.Exit(err.Error(), 1)
}
