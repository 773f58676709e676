package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"herald/internal/announce"
	"herald/internal/calendar"
	"herald/internal/config"
	"herald/internal/intro"
	"herald/internal/reconcile"
	"herald/internal/render"
	"herald/internal/schedule"
	"herald/internal/store"
	"herald/internal/telegram"
	"herald/internal/translate"
)

// retentionMargin pads the dedup retention window beyond the widest lookahead
// any trigger can query.
const retentionMargin = 24 * time.Hour

// Gateway assembles the configured domains into running engines, one shared
// bot, and one scheduler.
type Gateway struct {
	cfg   *config.Config
	bot   *telegram.Bot
	sched *schedule.Scheduler
	intro *intro.Supervisor
	log   *log.Logger
}

// Init loads the configuration at configPath and wires everything up. The
// returned cleanup stops the scheduler.
func Init(configPath string) (*Gateway, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := log.Default()

	stateDir := config.ExpandPath(cfg.StateDir)
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create state dir: %w", err)
	}

	translator, err := translate.New(cfg.Translation, cfg.SourceLanguage)
	if err != nil {
		return nil, nil, fmt.Errorf("init translation: %w", err)
	}

	bot, err := telegram.NewBot(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	renderer := render.New(cfg.Location())
	sched := schedule.New(logger)
	retention := cfg.MaxLookahead() + retentionMargin

	g := &Gateway{cfg: cfg, bot: bot, sched: sched, log: logger}

	for i := range cfg.Domains {
		d := &cfg.Domains[i]

		source, err := calendar.New(d.Source)
		if err != nil {
			// A broken source degrades the domain to a logged no-op; the
			// engines handle the nil source from here on.
			logger.Printf("[gateway] domain %s: %v; engines disabled", d.Name, err)
			source = nil
		}

		dom := &telegram.Domain{Name: d.Name}

		interval := time.Minute
		var audiences []config.Audience
		headline := "EVENT STARTING NOW"
		if d.Announce != nil {
			audiences = d.Announce.Audiences
			headline = d.Announce.Headline
			if iv, err := d.Announce.Interval(); err == nil {
				interval = iv
			} else {
				logger.Printf("[gateway] domain %s: %v; using 60s", d.Name, err)
			}
		}

		eng := announce.New(announce.Options{
			Domain:      d.Name,
			Source:      source,
			Announced:   store.OpenAnnounced(filepath.Join(stateDir, d.Name+".announced.json")),
			Messenger:   bot,
			Translator:  translator,
			Renderer:    renderer,
			Audiences:   audiences,
			SourceLang:  cfg.SourceLanguage,
			Headline:    headline,
			Interval:    interval,
			Retention:   retention,
			ManualDedup: d.ManualDedup,
			Logger:      logger,
		})
		dom.Announcer = eng

		if d.Announce != nil {
			if err := sched.AddEvery(interval, func() { eng.Tick(context.Background()) }); err != nil {
				return nil, nil, fmt.Errorf("schedule announcements for %s: %w", d.Name, err)
			}
		}

		if d.Summary != nil {
			rec := reconcile.New(reconcile.Options{
				Domain:     d.Name,
				Source:     source,
				Snapshot:   store.OpenSnapshot(filepath.Join(stateDir, d.Name+".snapshot.json")),
				Messenger:  bot,
				Translator: translator,
				Renderer:   renderer,
				Chat:       d.Summary.Chat,
				Lang:       d.Summary.Lang,
				SourceLang: cfg.SourceLanguage,
				MaxResults: d.Summary.MaxResults,
				Logger:     logger,
			})
			dom.Reconciler = rec

			if len(d.Summary.At) > 0 {
				if err := sched.AddDaily(d.Summary.At, func() { rec.Tick(context.Background()) }); err != nil {
					return nil, nil, fmt.Errorf("schedule summary for %s: %w", d.Name, err)
				}
			}
		}

		bot.RegisterDomain(dom)
	}

	if cfg.Intro.Chat != 0 {
		g.intro = intro.NewSupervisor(bot, cfg.Intro.Chat, logger)
		bot.SetIntro(g.intro)
	}

	cleanup := func() { sched.Stop() }
	return g, cleanup, nil
}

// Run starts the scheduler, the intro janitor, and the bot, blocking until
// ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	g.sched.Start()
	if g.intro != nil {
		g.intro.Start(ctx)
	}
	g.bot.Start(ctx)
}
