package recorder

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Target names one broadcast to record. Exactly one field is populated.
type Target struct {
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	RoomID   string `json:"room_id,omitempty" yaml:"room_id,omitempty"`
}

func URLTarget(u string) Target       { return Target{URL: u} }
func UserTarget(user string) Target   { return Target{Username: strings.TrimPrefix(user, "@")} }
func RoomTarget(roomID string) Target { return Target{RoomID: roomID} }

// Normalize trims surrounding spaces from every field, so that a blank
// field counts as unset everywhere.
func (t Target) Normalize() Target {
	return Target{
		URL:      strings.TrimSpace(t.URL),
		Username: strings.TrimSpace(t.Username),
		RoomID:   strings.TrimSpace(t.RoomID),
	}
}

// Validate checks that exactly one identifier is set.
func (t Target) Validate() error {
	set := 0
	for _, v := range []string{t.URL, t.Username, t.RoomID} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one of url, username, room id must be set (got %d)", ErrMalformedTarget, set)
	}
	return nil
}

func (t Target) String() string {
	switch {
	case t.Username != "":
		return "@" + t.Username
	case t.URL != "":
		return t.URL
	case t.RoomID != "":
		return "room " + t.RoomID
	}
	return "<empty target>"
}

// Label derives the task label used in logs and, when several targets are
// recorded at once, in output file names. index is zero based.
func (t Target) Label(index int) string {
	label := fmt.Sprintf("Stream-%d", index+1)
	switch {
	case t.Username != "":
		return label + "-" + t.Username
	case t.URL != "":
		if tail := urlTail(t.URL); tail != "" {
			return label + "-" + tail
		}
	case t.RoomID != "":
		return label + "-" + t.RoomID
	}
	return label
}

func urlTail(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		u = u[i+1:]
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return u
}

var userPathRe = regexp.MustCompile(`^/@([A-Za-z0-9._-]+)`)

// usernameFromURL extracts the broadcaster from URLs shaped like
// https://host/@user/live.
func usernameFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: invalid url %q", ErrMalformedTarget, raw)
	}
	m := userPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return "", fmt.Errorf("%w: no @username in url %q", ErrMalformedTarget, raw)
	}
	return m[1], nil
}
