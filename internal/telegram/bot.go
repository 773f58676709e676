package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"herald/internal/announce"
	"herald/internal/config"
	"herald/internal/intro"
	"herald/internal/reconcile"
	"herald/internal/render"
)

// maxLen leaves a little buffer under Telegram's 4096 character limit.
const maxLen = 4000

// commandTimeout bounds the network work behind a single bot command.
const commandTimeout = 2 * time.Minute

// Domain exposes one watched calendar's engines to bot commands. Either
// engine may be nil when the domain does not run that mode.
type Domain struct {
	Name       string
	Announcer  *announce.Engine
	Reconciler *reconcile.Engine
}

// Bot is herald's chat surface. It carries engine deliveries out to Telegram
// and routes on-demand commands back into the engines.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config
	log *log.Logger

	domains map[string]*Domain
	order   []string
	intro   *intro.Supervisor
}

// NewBot connects to Telegram. Engines and the intro supervisor attach
// afterwards, since they need the bot as their messenger.
func NewBot(cfg *config.Config, logger *log.Logger) (*Bot, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is not configured (set bot_token or HERALD_BOT_TOKEN)")
	}
	if logger == nil {
		logger = log.Default()
	}

	pref := tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	bot := &Bot{
		bot:     b,
		cfg:     cfg,
		log:     logger,
		domains: make(map[string]*Domain),
	}
	bot.setupHandlers()
	return bot, nil
}

// RegisterDomain attaches a domain's engines to the command surface.
func (b *Bot) RegisterDomain(d *Domain) {
	b.domains[d.Name] = d
	b.order = append(b.order, d.Name)
}

// SetIntro attaches the introduction interview supervisor.
func (b *Bot) SetIntro(sup *intro.Supervisor) {
	b.intro = sup
}

// Start long-polls until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	b.log.Printf("[telegram] starting herald bot (@%s)", b.bot.Me.Username)

	go func() {
		<-ctx.Done()
		b.log.Printf("[telegram] shutting down bot")
		b.bot.Stop()
	}()

	b.bot.Start()
}

/* ---------- Messenger ---------- */

// Send delivers text to chat as HTML, chunking under the message size limit.
// It returns the ids of every message posted.
func (b *Bot) Send(_ context.Context, chat int64, text string) ([]int, error) {
	var ids []int
	for _, chunk := range render.Split(text, maxLen) {
		msg, err := b.bot.Send(tele.ChatID(chat), chunk, tele.ModeHTML)
		if err != nil {
			return ids, err
		}
		ids = append(ids, msg.ID)
	}
	return ids, nil
}

// Delete removes previously posted messages from chat. Messages that are
// already gone only contribute to the returned error.
func (b *Bot) Delete(_ context.Context, chat int64, messageIDs []int) error {
	var errs []error
	for _, id := range messageIDs {
		stored := tele.StoredMessage{MessageID: strconv.Itoa(id), ChatID: chat}
		if err := b.bot.Delete(stored); err != nil {
			errs = append(errs, fmt.Errorf("delete message %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

/* ---------- Commands ---------- */

func (b *Bot) setupHandlers() {
	b.bot.Handle("/start", func(c tele.Context) error {
		lines := []string{
			"👋 Hello! I watch calendars and announce events as they start.",
			"",
			"/upcoming [domain] — your schedule for the next 3 days, privately",
			"/announce <domain> — post the next 24 hours to the shared chats (admins)",
			"/summary <domain> — refresh the live summary post (admins)",
		}
		if b.intro.Enabled() {
			lines = append(lines, "/intro — introduce yourself to the community")
		}
		return c.Send(strings.Join(lines, "\n"))
	})

	b.bot.Handle("/upcoming", b.handleUpcoming)
	b.bot.Handle("/announce", b.handleAnnounce)
	b.bot.Handle("/summary", b.handleSummary)
	b.bot.Handle("/intro", b.handleIntro)
	b.bot.Handle(tele.OnText, b.handleText)
}

func (b *Bot) handleUpcoming(c tele.Context) error {
	d, err := b.domainFor(c.Args())
	if err != nil {
		return c.Send(err.Error())
	}
	if d.Announcer == nil {
		return c.Send(fmt.Sprintf("Domain %q has no announcement calendar.", d.Name))
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	text, err := d.Announcer.UpcomingText(ctx, 72*time.Hour, b.cfg.SourceLanguage, displayName(c.Sender()))
	if err != nil {
		b.log.Printf("[telegram] /upcoming for %s failed: %v", d.Name, err)
		return c.Send("An error occurred while fetching your schedule. Please try again later.")
	}

	if c.Chat().Type == tele.ChatPrivate {
		_, err := b.Send(ctx, c.Chat().ID, text)
		return err
	}

	// In a group the schedule goes to the requester's DMs; when that is not
	// possible the requester must hear about it in the invoking chat.
	if err := b.sendPrivateChunks(c.Sender(), text); err != nil {
		b.log.Printf("[telegram] DM to %d failed: %v", c.Sender().ID, err)
		return c.Reply("I couldn't reach you privately. Open a chat with me first, then try again.")
	}
	return c.Reply("I've sent your schedule to your DMs.")
}

func (b *Bot) handleAnnounce(c tele.Context) error {
	if !b.isAdmin(c.Sender().ID) {
		return c.Send("Sorry, only admins can trigger announcements.")
	}
	d, err := b.domainFor(c.Args())
	if err != nil {
		return c.Send(err.Error())
	}
	if d.Announcer == nil {
		return c.Send(fmt.Sprintf("Domain %q has no announcement calendar.", d.Name))
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	n, err := d.Announcer.AnnounceWindow(ctx, 24*time.Hour, "Events in the Next 24 Hours")
	if err != nil {
		b.log.Printf("[telegram] /announce for %s failed: %v", d.Name, err)
		return c.Send("Could not post the announcement. Please try again later.")
	}
	return c.Send(fmt.Sprintf("Posted %d event(s) for the next 24 hours to the %s chats.", n, d.Name))
}

func (b *Bot) handleSummary(c tele.Context) error {
	if !b.isAdmin(c.Sender().ID) {
		return c.Send("Sorry, only admins can refresh the summary.")
	}
	d, err := b.domainFor(c.Args())
	if err != nil {
		return c.Send(err.Error())
	}
	if d.Reconciler == nil {
		return c.Send(fmt.Sprintf("Domain %q has no summary configured.", d.Name))
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := d.Reconciler.Run(ctx); err != nil {
		b.log.Printf("[telegram] /summary for %s failed: %v", d.Name, err)
		return c.Send("Could not refresh the summary. Please try again later.")
	}
	return c.Send(fmt.Sprintf("Summary for %s refreshed.", d.Name))
}

func (b *Bot) handleIntro(c tele.Context) error {
	if !b.intro.Enabled() {
		return c.Send("Introductions are not set up on this server.")
	}
	if c.Chat().Type != tele.ChatPrivate {
		return c.Reply("Let's do this privately — open a chat with me and send /intro there.")
	}
	return c.Send(b.intro.Begin(c.Sender().ID, c.Chat().ID, displayName(c.Sender())))
}

func (b *Bot) handleText(c tele.Context) error {
	if !b.intro.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if reply, handled := b.intro.HandleMessage(ctx, c.Sender().ID, c.Chat().ID, c.Text()); handled {
		return c.Send(reply, tele.ModeHTML)
	}
	return nil
}

/* ---------- Helpers ---------- */

func (b *Bot) domainFor(args []string) (*Domain, error) {
	if len(args) > 0 {
		if d, ok := b.domains[args[0]]; ok {
			return d, nil
		}
		return nil, fmt.Errorf("Unknown domain %q. Configured: %s.", args[0], strings.Join(b.order, ", "))
	}
	if len(b.order) == 1 {
		return b.domains[b.order[0]], nil
	}
	if len(b.order) == 0 {
		return nil, errors.New("No calendar domains are configured.")
	}
	return nil, fmt.Errorf("Which domain? Configured: %s.", strings.Join(b.order, ", "))
}

func (b *Bot) isAdmin(userID int64) bool {
	for _, id := range b.cfg.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

func (b *Bot) sendPrivateChunks(user *tele.User, text string) error {
	for _, chunk := range render.Split(text, maxLen) {
		if _, err := b.bot.Send(user, chunk, tele.ModeHTML); err != nil {
			return err
		}
	}
	return nil
}

func displayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}
