package onboarding

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"herald/internal/config"
)

// Wizard walks the user through a first herald configuration on plain stdin,
// for terminals where the TUI cannot run.
type Wizard struct {
	scanner *bufio.Scanner
}

func NewWizard() *Wizard {
	return &Wizard{scanner: bufio.NewScanner(os.Stdin)}
}

// Run gathers a configuration interactively and writes it to path.
func (w *Wizard) Run(path string) (*config.Config, error) {
	fmt.Println("\n🚀 Welcome to herald setup!")
	fmt.Println("Let's configure your calendar announcement bot.")
	fmt.Println(strings.Repeat("-", 40))

	cfg := config.DefaultConfig()

	fmt.Println("\n[1/4] Telegram")
	cfg.BotToken = w.ask("Bot token (from @BotFather)", "")
	if admin := w.ask("Your Telegram user id (for admin commands, optional)", ""); admin != "" {
		if id, err := strconv.ParseInt(admin, 10, 64); err == nil {
			cfg.Admins = append(cfg.Admins, id)
		} else {
			fmt.Println("❌ Not a number, skipping.")
		}
	}

	fmt.Println("\n[2/4] Display")
	if off := w.ask("Fixed UTC offset for timestamps (e.g. -2)", "0"); off != "" {
		if n, err := strconv.Atoi(off); err == nil {
			cfg.UTCOffsetHours = n
		}
	}
	cfg.SourceLanguage = w.ask("Language your calendar entries are written in", "en")

	fmt.Println("\n[3/4] Calendar domains")
	for {
		d := w.askDomain(len(cfg.Domains) + 1)
		cfg.Domains = append(cfg.Domains, d)
		fmt.Print("Add another domain? (y/N): ")
		if !w.confirm(false) {
			break
		}
	}

	fmt.Println("\n[4/4] Translation")
	fmt.Println("Translate announcements for non-source-language audiences?")
	fmt.Println("1) off  2) Google Translate (API key)  3) LLM (Ollama/OpenAI)")
	switch w.ask("Choice", "1") {
	case "2":
		cfg.Translation.Backend = "google"
		cfg.Translation.GoogleAPIKey = w.ask("Google Translate API key (or set HERALD_TRANSLATE_KEY)", "")
	case "3":
		cfg.Translation.Backend = "llm"
		cfg.Translation.LLMProvider = w.ask("Provider (ollama/openai)", "ollama")
		cfg.Translation.LLMModel = w.ask("Model", "llama3.2")
		cfg.Translation.LLMBaseURL = w.ask("Base URL (empty for default)", "")
	default:
		cfg.Translation.Backend = "off"
	}

	if intro := w.ask("\nIntroductions chat id (empty to disable /intro)", ""); intro != "" {
		if id, err := strconv.ParseInt(intro, 10, 64); err == nil {
			cfg.Intro.Chat = id
		}
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("\n✅ Configuration written to %s. Start the bot with `herald run`.\n", path)
	return cfg, nil
}

func (w *Wizard) askDomain(n int) config.DomainConfig {
	d := config.DomainConfig{}
	d.Name = w.ask(fmt.Sprintf("Domain %d name (e.g. events, trains)", n), fmt.Sprintf("domain%d", n))

	fmt.Println("Calendar source: 1) Google Calendar  2) ICS feed URL")
	if w.ask("Choice", "1") == "2" {
		d.Source.Type = "ics"
		d.Source.URL = w.ask("Feed URL", "")
	} else {
		d.Source.Type = "google"
		d.Source.CalendarID = w.ask("Calendar id", "")
		d.Source.CredentialsFile = w.ask("Credentials file (empty to use HERALD_GOOGLE_API_KEY)", "")
	}

	fmt.Print("Announce events as they start? (Y/n): ")
	if w.confirm(true) {
		a := &config.AnnounceConfig{Every: "60s"}
		for {
			chat := w.ask("Destination chat id", "")
			lang := w.ask("Audience language", "en")
			if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
				a.Audiences = append(a.Audiences, config.Audience{Lang: lang, Chat: id})
			} else {
				fmt.Println("❌ Not a number, skipping.")
			}
			fmt.Print("Add another audience? (y/N): ")
			if !w.confirm(false) {
				break
			}
		}
		d.Announce = a
	}

	fmt.Print("Maintain a daily live summary post? (y/N): ")
	if w.confirm(false) {
		s := &config.SummaryConfig{}
		if id, err := strconv.ParseInt(w.ask("Summary chat id", ""), 10, 64); err == nil {
			s.Chat = id
		}
		times := w.ask("Times of day, comma separated (HH:MM)", "13:00,01:00")
		for _, at := range strings.Split(times, ",") {
			if at = strings.TrimSpace(at); at != "" {
				s.At = append(s.At, at)
			}
		}
		d.Summary = s
	}
	return d
}

func (w *Wizard) ask(prompt, def string) string {
	if def != "" {
		fmt.Printf("%s (default: %s): ", prompt, def)
	} else {
		fmt.Printf("%s: ", prompt)
	}
	w.scanner.Scan()
	input := strings.TrimSpace(w.scanner.Text())
	if input == "" {
		return def
	}
	return input
}

func (w *Wizard) confirm(def bool) bool {
	w.scanner.Scan()
	input := strings.ToLower(strings.TrimSpace(w.scanner.Text()))
	if input == "" {
		return def
	}
	return input == "y" || input == "yes"
}
