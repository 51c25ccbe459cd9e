package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

func NormalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Very simple {var} replacement, same syntax for subject and html.
func RenderTemplate(body string, vars map[string]string) string {
	out := body
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// NewID returns a prefixed ULID. ULIDs sort by creation time, which keeps list endpoints cheap.
func NewID(prefix string) string {
	t := time.Now().UTC()
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NewCampaignID() string   { return NewID("cmp") }
func NewListID() string       { return NewID("lst") }
func NewSubscriberID() string { return NewID("sub") }

func NowUTC() time.Time {
	return time.Now().UTC()
}
