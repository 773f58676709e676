package intro

import (
	"context"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Messenger posts the compiled introduction card.
type Messenger interface {
	Send(ctx context.Context, chat int64, text string) ([]int, error)
}

const (
	stepTimeout    = 60 * time.Second
	sessionTimeout = 10 * time.Minute
)

var questions = []string{
	"What is your name? (Optional)",
	"Where are you from or living?",
	// The timezone menu slots in here; see timezoneStep.
	"What do you do for a living?",
	"What are your hobbies outside of gaming?",
	"What is your favorite game?",
	"How did you find the community?",
	"Share a fun fact about yourself.",
	"Anything else you would like to add?",
}

// timezoneStep is the interview step at which the two-level timezone menu
// replaces a free-text question.
const timezoneStep = 2

var timezoneRegions = []struct {
	name  string
	zones []string
}{
	{"North America", []string{
		"EST (GMT -5:00)", "CST (GMT -6:00)", "MST (GMT -7:00)", "PST (GMT -8:00)",
		"AKST (GMT -9:00)", "HST (GMT -10:00)", "AST (GMT -4:00)", "NST (GMT -3:30)",
	}},
	{"Europe", []string{
		"GMT (GMT)", "CET (GMT +1:00)", "EET (GMT +2:00)", "MSK (GMT +3:00)", "WEST (GMT +1:00)",
	}},
	{"Asia & Oceania", []string{
		"IST (GMT +5:30)", "CST (GMT +8:00)", "JST (GMT +9:00)", "AET (GMT +10:00)", "NZST (GMT +12:00)",
	}},
	{"Other", []string{
		"UTC", "ART (GMT -3:00)", "EAT (GMT +3:00)", "AWST (GMT +8:00)",
	}},
}

type stage int

const (
	stageQuestion stage = iota
	stageRegion
	stageZone
)

type answer struct {
	question string
	response string
}

// session is one member's in-flight interview. Sessions are keyed by the
// initiator's user id; a second /intro replaces the running one.
type session struct {
	id         string
	userID     int64
	chat       int64
	name       string
	stage      stage
	step       int
	region     int
	answers    []answer
	started    time.Time
	lastActive time.Time
}

// Supervisor owns all interview sessions: it advances them on each incoming
// message, expires the idle ones from a janitor loop, and posts completed
// cards to the introductions chat.
type Supervisor struct {
	messenger Messenger
	introChat int64
	log       *log.Logger

	mu       sync.Mutex
	sessions map[int64]*session

	now func() time.Time
}

func NewSupervisor(messenger Messenger, introChat int64, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{
		messenger: messenger,
		introChat: introChat,
		log:       logger,
		sessions:  make(map[int64]*session),
		now:       time.Now,
	}
}

// Enabled reports whether an introductions chat is configured.
func (s *Supervisor) Enabled() bool {
	return s != nil && s.introChat != 0
}

// Start runs the janitor loop until ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Sweep expires sessions that blew the per-step or global timeout, notifying
// the member in the interview chat.
func (s *Supervisor) Sweep(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var expired []*session
	for userID, sess := range s.sessions {
		if now.Sub(sess.lastActive) > stepTimeout || now.Sub(sess.started) > sessionTimeout {
			expired = append(expired, sess)
			delete(s.sessions, userID)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		s.log.Printf("[intro] session %s for user %d timed out", sess.id, sess.userID)
		s.notify(ctx, sess.chat, "You took too long to respond, so the introduction was cancelled. Send /intro to start over.")
	}
}

// Begin starts (or restarts) an interview for userID in chat. The returned
// text is the opening prompt.
func (s *Supervisor) Begin(userID, chat int64, name string) string {
	now := s.now()
	sess := &session{
		id:         uuid.NewString(),
		userID:     userID,
		chat:       chat,
		name:       name,
		started:    now,
		lastActive: now,
	}

	s.mu.Lock()
	if old, ok := s.sessions[userID]; ok {
		s.log.Printf("[intro] replacing session %s for user %d", old.id, userID)
	}
	s.sessions[userID] = sess
	s.mu.Unlock()

	return "Let's put together your introduction! Answer the questions one by one. " +
		"You can type 'quit' to cancel or 'restart' to begin again.\n\n" + s.prompt(sess)
}

// Active reports whether userID has a running interview in chat.
func (s *Supervisor) Active(userID, chat int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	return ok && sess.chat == chat
}

// HandleMessage feeds one incoming message into userID's session. The second
// return value is false when no session consumes the message. The session is
// mutated with s.mu held for the whole exchange; the transport dispatches
// handlers concurrently, so two rapid messages must serialize here.
func (s *Supervisor) HandleMessage(ctx context.Context, userID, chat int64, text string) (string, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok || sess.chat != chat {
		s.mu.Unlock()
		return "", false
	}
	sess.lastActive = s.now()
	reply, completed := s.consume(userID, sess, text)
	s.mu.Unlock()

	if !completed {
		return reply, true
	}
	// The session is out of the map by now, so posting outside the lock is
	// safe: no other goroutine can reach it.
	if err := s.post(ctx, sess); err != nil {
		s.log.Printf("[intro] could not post introduction for user %d: %v", sess.userID, err)
		return "I could not post your introduction to the introductions chat. Please contact an admin.", true
	}
	return "All done — your introduction has been posted. Welcome! 🎉", true
}

// consume applies one message to sess. Runs with s.mu held. A true completed
// means the interview finished and the card should be posted.
func (s *Supervisor) consume(userID int64, sess *session, text string) (reply string, completed bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "quit":
		delete(s.sessions, userID)
		return "Introduction cancelled.", false
	case "restart":
		sess.stage = stageQuestion
		sess.step = 0
		sess.answers = nil
		return "Starting over.\n\n" + s.prompt(sess), false
	}

	switch sess.stage {
	case stageRegion:
		idx, err := pick(text, len(timezoneRegions))
		if err != nil {
			return "Please reply with one of the region numbers.\n\n" + regionMenu(), false
		}
		sess.region = idx
		sess.stage = stageZone
		return zoneMenu(idx), false

	case stageZone:
		zones := timezoneRegions[sess.region].zones
		idx, err := pick(text, len(zones))
		if err != nil {
			return "Please reply with one of the timezone numbers.\n\n" + zoneMenu(sess.region), false
		}
		sess.answers = append(sess.answers, answer{question: "Timezone", response: zones[idx]})
		sess.stage = stageQuestion
		sess.step++
		return s.advance(userID, sess)

	default:
		sess.answers = append(sess.answers, answer{question: currentQuestion(sess.step), response: strings.TrimSpace(text)})
		sess.step++
		return s.advance(userID, sess)
	}
}

// advance moves to the next prompt, or removes the session when the interview
// is done. Runs with s.mu held.
func (s *Supervisor) advance(userID int64, sess *session) (string, bool) {
	if sess.step == timezoneStep {
		sess.stage = stageRegion
		return "Please select your timezone.\n\n" + regionMenu(), false
	}
	if sess.step >= len(questions)+1 {
		delete(s.sessions, userID)
		return "", true
	}
	return s.prompt(sess), false
}

func (s *Supervisor) prompt(sess *session) string {
	if sess.step == timezoneStep {
		return regionMenu()
	}
	return currentQuestion(sess.step)
}

// currentQuestion maps a step index to its question, skipping over the
// timezone menu slot.
func currentQuestion(step int) string {
	if step > timezoneStep {
		step--
	}
	return questions[step]
}

func (s *Supervisor) post(ctx context.Context, sess *session) error {
	var b strings.Builder
	name := sess.name
	if name == "" {
		name = "a new member"
	}
	fmt.Fprintf(&b, "<b>New introduction from %s</b>", html.EscapeString(name))
	for _, a := range sess.answers {
		if a.response == "" {
			continue
		}
		q := strings.TrimSpace(strings.ReplaceAll(a.question, "(Optional)", ""))
		fmt.Fprintf(&b, "\n\n<b>%s</b>\n%s", html.EscapeString(q), html.EscapeString(a.response))
	}
	_, err := s.messenger.Send(ctx, s.introChat, b.String())
	return err
}

func (s *Supervisor) notify(ctx context.Context, chat int64, text string) {
	if _, err := s.messenger.Send(ctx, chat, text); err != nil {
		s.log.Printf("[intro] could not notify chat %d: %v", chat, err)
	}
}

func pick(text string, n int) (int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || idx < 1 || idx > n {
		return 0, fmt.Errorf("pick out of range")
	}
	return idx - 1, nil
}

func regionMenu() string {
	var b strings.Builder
	b.WriteString("First, choose a region (reply with a number):")
	for i, r := range timezoneRegions {
		fmt.Fprintf(&b, "\n%d) %s", i+1, r.name)
	}
	return b.String()
}

func zoneMenu(region int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Now choose your timezone in %s (reply with a number):", timezoneRegions[region].name)
	for i, z := range timezoneRegions[region].zones {
		fmt.Fprintf(&b, "\n%d) %s", i+1, z)
	}
	return b.String()
}
