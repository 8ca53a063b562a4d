package schedfile

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

const (
	keyRecipient    = "USER_ID="
	keyCredential   = "BOT_TOKEN="
	keyStartMessage = "START_MESSAGE="

	tripleQuote = `"""`
)

var (
	// Any line starting like an entry header must be one of the two entry forms.
	reEntryHeader = regexp.MustCompile(`^([A-Z]{3})-(\d{2}):(\d{2})-`)
	reEntryBlock  = regexp.MustCompile(`^([A-Z]{3})-(\d{2}):(\d{2})-"""$`)
	reEntryLine   = regexp.MustCompile(`^([A-Z]{3})-(\d{2}):(\d{2})-"(.+)"$`)
)

// state is the parser's position in the grammar. Lines read in a block state
// are body text and never re-evaluated as directives.
type state int

const (
	stateTopLevel state = iota
	stateStartupBlock
	stateScheduleBlock
)

func (s state) String() string {
	switch s {
	case stateTopLevel:
		return "top level"
	case stateStartupBlock:
		return "START_MESSAGE block"
	case stateScheduleBlock:
		return "scheduled message block"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = [...]func(p *parser, raw string) error{
	stateTopLevel:      (*parser).topLevel,
	stateStartupBlock:  (*parser).blockLine,
	stateScheduleBlock: (*parser).blockLine,
}

type parser struct {
	cfg   Config
	state state
	line  int

	recipientLine  int
	hasCredential  bool
	credentialLine int

	blockStart int
	blockLines []string
	pending    Entry
}

// ParseFile reads path wholesale and parses it.
func ParseFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read schedule file: %w", err)
	}
	return Parse(string(b))
}

// Parse parses schedule file text in a single top-to-bottom pass.
func Parse(text string) (Config, error) {
	p := &parser{}
	for i, raw := range splitLines(text) {
		p.line = i + 1
		if err := transitions[p.state](p, raw); err != nil {
			return Config{}, err
		}
	}
	if p.state != stateTopLevel {
		return Config{}, configErr(p.blockStart, ErrUnterminatedBlock, "%s is never closed with %s", p.state, tripleQuote)
	}
	return p.finish()
}

// splitLines returns raw lines without their line terminators.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func (p *parser) topLevel(raw string) error {
	line := strings.TrimSpace(raw)
	switch {
	case line == "" || strings.HasPrefix(line, "#"):
		return nil
	case strings.HasPrefix(line, keyRecipient):
		v := strings.TrimSpace(line[len(keyRecipient):])
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return configErr(p.line, ErrInvalidRecipient, "%q is not an integer", v)
		}
		p.cfg.RecipientID = id
		p.recipientLine = p.line
		return nil
	case strings.HasPrefix(line, keyCredential):
		p.cfg.Credential = line[len(keyCredential):]
		p.hasCredential = true
		p.credentialLine = p.line
		return nil
	case strings.HasPrefix(line, keyStartMessage):
		return p.startMessage(line[len(keyStartMessage):])
	}

	if m := reEntryBlock.FindStringSubmatch(line); m != nil {
		e, err := p.newEntry(m[1], m[2], m[3])
		if err != nil {
			return err
		}
		p.pending = e
		p.openBlock(stateScheduleBlock)
		return nil
	}
	if m := reEntryLine.FindStringSubmatch(line); m != nil {
		e, err := p.newEntry(m[1], m[2], m[3])
		if err != nil {
			return err
		}
		if strings.Contains(m[4], `"`) {
			return configErr(p.line, ErrMalformedEntry, "double quotes inside a single-line message are not supported; use a %s block", tripleQuote)
		}
		e.Body = m[4]
		p.cfg.Entries = append(p.cfg.Entries, e)
		return nil
	}
	if reEntryHeader.MatchString(line) {
		return configErr(p.line, ErrMalformedEntry, `expected XXX-HH:MM-"message" or XXX-HH:MM-%s`, tripleQuote)
	}

	// Unknown directives are ignored.
	return nil
}

func (p *parser) startMessage(value string) error {
	v := strings.TrimSpace(value)
	if !strings.HasPrefix(v, tripleQuote) {
		// Plain, unquoted value.
		msg := value
		p.cfg.StartupMessage = &msg
		return nil
	}

	rest := v[len(tripleQuote):]
	if strings.HasSuffix(rest, tripleQuote) {
		inner := rest[:len(rest)-len(tripleQuote)]
		if strings.Contains(inner, tripleQuote) {
			return configErr(p.line, ErrMalformedStartMessage, "embedded %s in inline message", tripleQuote)
		}
		p.cfg.StartupMessage = &inner
		return nil
	}
	if strings.Contains(rest, tripleQuote) {
		return configErr(p.line, ErrMalformedStartMessage, "text after closing %s", tripleQuote)
	}
	if rest != "" && strings.Trim(rest, `"`) == "" {
		return configErr(p.line, ErrMalformedStartMessage, "%q is neither an inline message nor a block opener", v)
	}

	p.openBlock(stateStartupBlock)
	if rest != "" {
		p.blockLines = append(p.blockLines, rest)
	}
	return nil
}

func (p *parser) newEntry(day, hh, mm string) (Entry, error) {
	wd, ok := ParseWeekday(day)
	if !ok {
		return Entry{}, configErr(p.line, ErrUnknownWeekday, "%q (want one of %s)", day, strings.Join(weekdayCodes[:], ", "))
	}
	// The patterns guarantee two ASCII digits.
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	return Entry{Weekday: wd, Hour: h, Minute: m, Line: p.line}, nil
}

func (p *parser) openBlock(s state) {
	p.state = s
	p.blockStart = p.line
	p.blockLines = nil
}

func (p *parser) blockLine(raw string) error {
	if strings.TrimSpace(raw) != tripleQuote {
		p.blockLines = append(p.blockLines, raw)
		return nil
	}

	body := strings.Join(p.blockLines, "\n")
	switch p.state {
	case stateStartupBlock:
		p.cfg.StartupMessage = &body
	case stateScheduleBlock:
		e := p.pending
		e.Body = body
		p.cfg.Entries = append(p.cfg.Entries, e)
	}
	p.state = stateTopLevel
	p.blockLines = nil
	p.pending = Entry{}
	return nil
}

func (p *parser) finish() (Config, error) {
	if p.recipientLine == 0 {
		return Config{}, configErr(0, ErrMissingField, "USER_ID is not set")
	}
	if p.cfg.RecipientID == 0 {
		return Config{}, configErr(p.recipientLine, ErrInvalidRecipient, "USER_ID must be non-zero")
	}
	if !p.hasCredential || p.cfg.Credential == "" {
		return Config{}, configErr(p.credentialLine, ErrMissingField, "BOT_TOKEN is not set")
	}
	return p.cfg, nil
}
