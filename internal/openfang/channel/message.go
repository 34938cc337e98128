// Package channel defines the normalised message model and the adapter
// contract every concrete messaging-platform integration implements.
package channel

import "time"

// Tag identifies an adapter family. Custom names let an operator register
// an adapter this package doesn't ship a constant for.
type Tag string

const (
	Telegram  Tag = "telegram"
	Slack     Tag = "slack"
	Discord   Tag = "discord"
	IRC       Tag = "irc"
	Matrix    Tag = "matrix"
	Teams     Tag = "teams"
	Viber     Tag = "viber"
	Line      Tag = "line"
	Keybase   Tag = "keybase"
	Nextcloud Tag = "nextcloud"
	Webex     Tag = "webex"
	Zulip     Tag = "zulip"
	Twist     Tag = "twist"
	Nostr     Tag = "nostr"
	Ntfy      Tag = "ntfy"
	Mumble    Tag = "mumble"
	Messenger Tag = "messenger"
	WhatsApp  Tag = "whatsapp"
	Signal    Tag = "signal"
)

// Custom builds a Tag for an adapter family not covered by the named
// constants above.
func Custom(name string) Tag { return Tag("custom:" + name) }

// OutboundTextLimit is the hard per-message character limit for each
// platform tag; Send implementations must split at this boundary rather
// than silently truncating.
var OutboundTextLimit = map[Tag]int{
	Telegram:  4096,
	Slack:     3000,
	Line:      5000,
	Messenger: 2000,
	Webex:     7439,
	Nextcloud: 32000,
	Twist:     10000,
	Keybase:   10000,
	Zulip:     10000,
	IRC:       400,
	Viber:     7000,
	Nostr:     4096,
	Ntfy:      4096,
	Mumble:    5000,
	Teams:     4096,
}

// SplitText breaks text into chunks no longer than limit runes, splitting on
// the last preceding whitespace where possible so words aren't cut midway.
func SplitText(text string, limit int) []string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}

	runes := []rune(text)
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i] == ' ' || runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
		for len(runes) > 0 && (runes[0] == ' ' || runes[0] == '\n') {
			runes = runes[1:]
		}
	}
	return chunks
}

// User identifies the reply target for a message: whatever value, passed
// back to Send, delivers the reply to the right peer (chat id, email, room
// token, thread id, stream name, recipient pubkey, …).
type User struct {
	PlatformID   string
	DisplayName  string
	OpenFangUser string // empty when the sender hasn't been linked to a local identity
}

// ContentKind tags the variant held by Content.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentCommand
	ContentImage
	ContentFile
	ContentAudio
	ContentVideo
)

// Content is the tagged union of what a message can carry. Only the fields
// relevant to Kind are meaningful.
type Content struct {
	Kind ContentKind

	Text string // ContentText

	CommandName string   // ContentCommand
	CommandArgs []string // ContentCommand

	MediaURL     string // ContentImage/File/Audio/Video
	MediaCaption string // ContentImage/File/Audio/Video, optional
}

// ParseCommand splits "/name arg1 arg2" style text into a Command content
// value. ok is false if text doesn't start with a command prefix.
func ParseCommand(text string, prefixes ...string) (Content, bool) {
	for _, prefix := range prefixes {
		if len(text) > len(prefix) && text[:len(prefix)] == prefix {
			fields := splitFields(text[len(prefix):])
			if len(fields) == 0 {
				continue
			}
			return Content{Kind: ContentCommand, CommandName: fields[0], CommandArgs: fields[1:]}, true
		}
	}
	return Content{}, false
}

func splitFields(s string) []string {
	var fields []string
	var cur []rune
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if len(cur) > 0 {
				fields = append(fields, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		fields = append(fields, string(cur))
	}
	return fields
}

// Message is the normalised inbound/outbound unit every adapter produces
// and consumes.
type Message struct {
	Channel           Tag
	PlatformMessageID string
	Sender            User
	Content           Content
	TargetAgent       string // optional override parsed from content
	Timestamp         time.Time
	IsGroup           bool
	ThreadID          string
	Metadata          map[string]interface{}
}
