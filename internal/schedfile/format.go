package schedfile

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders cfg as schedule file text that Parse reads back to an equal
// Config (entry Line numbers aside). Bodies that cannot be expressed in the
// file format are reported as errors.
func Format(cfg Config) (string, error) {
	if strings.ContainsAny(cfg.Credential, "\r\n") || strings.TrimSpace(cfg.Credential) != cfg.Credential {
		return "", fmt.Errorf("BOT_TOKEN: must be a single line without surrounding whitespace")
	}

	var b strings.Builder
	b.WriteString(keyRecipient + strconv.FormatInt(cfg.RecipientID, 10) + "\n")
	b.WriteString(keyCredential + cfg.Credential + "\n")

	if cfg.StartupMessage != nil {
		msg := *cfg.StartupMessage
		if err := checkBlockBody(msg); err != nil {
			return "", fmt.Errorf("START_MESSAGE: %w", err)
		}
		switch {
		case !strings.Contains(msg, "\n") && !strings.Contains(msg, tripleQuote) && strings.TrimSpace(msg) == msg:
			b.WriteString(keyStartMessage + tripleQuote + msg + tripleQuote + "\n")
		default:
			b.WriteString(keyStartMessage + tripleQuote + "\n")
			b.WriteString(msg + "\n")
			b.WriteString(tripleQuote + "\n")
		}
	}

	for i, e := range cfg.Entries {
		if !e.Weekday.Valid() || e.Hour < 0 || e.Hour > 99 || e.Minute < 0 || e.Minute > 99 {
			return "", fmt.Errorf("entry %d: cannot render %s", i, e.Label())
		}
		head := fmt.Sprintf("%s-%02d:%02d-", e.Weekday, e.Hour, e.Minute)
		if e.Body != "" && !strings.ContainsAny(e.Body, "\"\n\r") && strings.TrimSpace(e.Body) == e.Body {
			b.WriteString(head + `"` + e.Body + `"` + "\n")
			continue
		}
		if err := checkBlockBody(e.Body); err != nil {
			return "", fmt.Errorf("entry %d (%s): %w", i, e.Label(), err)
		}
		b.WriteString(head + tripleQuote + "\n")
		if e.Body != "" {
			b.WriteString(e.Body + "\n")
		}
		b.WriteString(tripleQuote + "\n")
	}
	return b.String(), nil
}

// checkBlockBody rejects bodies that cannot survive a round trip through a
// multi-line block.
func checkBlockBody(body string) error {
	for _, l := range strings.Split(body, "\n") {
		if strings.TrimSpace(l) == tripleQuote {
			return fmt.Errorf("body line %q would close the block", l)
		}
		if strings.HasSuffix(l, "\r") {
			return fmt.Errorf("body line ends with a carriage return")
		}
	}
	return nil
}
