package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/illarion/mithril/internal/audit"
	"github.com/illarion/mithril/internal/config"
	"github.com/illarion/mithril/internal/console"
	"github.com/illarion/mithril/internal/core"
	"github.com/illarion/mithril/internal/desktop"
	"github.com/illarion/mithril/internal/logging"
	"github.com/illarion/mithril/internal/mounttable"
	"github.com/illarion/mithril/internal/prompt"
	"github.com/illarion/mithril/internal/runner"
	"github.com/illarion/mithril/internal/session"
	"github.com/illarion/mithril/internal/storage"
)

// settingConsoleEnabled overrides console.enabled from the config file.
const settingConsoleEnabled = "console.enabled"

// App holds everything a command needs.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   *storage.Storage
	Console *console.Manager
	Creds   *session.Credentials
	Profile string
	Manager *core.Manager

	logCloser io.Closer
}

var app *App

func openApp(configPath, profile string, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, logCloser, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		logCloser.Close()
		return err
	}

	if profile == "" {
		if profile, err = store.CurrentProfile(); err != nil {
			store.Close()
			logCloser.Close()
			return err
		}
	}

	enabled := cfg.Console.Enabled
	if v, ok, err := store.Setting(settingConsoleEnabled); err == nil && ok {
		if b, perr := strconv.ParseBool(v); perr == nil {
			enabled = b
		}
	}
	detector := console.NewDetector(cfg.Console.Transcript)
	echo := console.NewManager(enabled, detector.Detect)

	var source mounttable.Source = mounttable.LiveSource{FSType: cfg.Tool.FSType}
	if cfg.MountTable.File != "" {
		source = mounttable.FileSource{Path: cfg.MountTable.File, FSType: cfg.Tool.FSType}
	}

	creds := session.New()
	manager := core.NewManager(core.Options{
		Tool: core.Tool{
			Binary:            cfg.Tool.Binary,
			ConfigFile:        cfg.Tool.ConfigFile,
			ReverseConfigFile: cfg.Tool.ReverseConfigFile,
			Unmount:           cfg.Tool.Unmount,
			AuthExitCode:      cfg.Tool.AuthExitCode,
		},
		AllowedRoots: cfg.Deletion.AllowedRoots,
		Runner:       runner.New(),
		Session:      core.NewSessionContext(creds, source),
		Catalog:      core.NewCatalog(store, profile),
		Prompter:     prompt.NewTerminal(prompt.RememberPolicy(cfg.Session.Remember)),
		Opener:       desktop.NewXDGOpener(logger),
		Echo:         echo,
		Audit:        audit.New(cfg.Audit.Path),
		Logger:       logger,
	})

	app = &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Console:   echo,
		Creds:     creds,
		Profile:   profile,
		Manager:   manager,
		logCloser: logCloser,
	}
	logger.Debug().Str("profile", profile).Str("db", store.Path()).Msg("ready")
	return nil
}

func closeApp() {
	if app == nil {
		return
	}
	app.Creds.Clear()
	if err := app.Console.Close(); err != nil {
		app.Logger.Debug().Err(err).Msg("failed to close echo surface")
	}
	if err := app.Store.Close(); err != nil {
		app.Logger.Warn().Err(err).Msg("failed to close database")
	}
	app.logCloser.Close()
	app = nil
}

// updateProfiles runs fn on the stored profile document and saves it.
func updateProfiles(fn func(storage.Profiles) error) error {
	profiles, err := app.Store.Load()
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	if err := fn(profiles); err != nil {
		return err
	}
	return app.Store.Save(profiles)
}
