// Package referrers turns raw Referer values into traffic sources.
package referrers

import (
	"net/url"
	"strings"
)

// Channel groups sources for the referrer breakdown.
type Channel string

const (
	ChannelDirect    Channel = "direct"
	ChannelSearch    Channel = "search"
	ChannelSocial    Channel = "social"
	ChannelCommunity Channel = "community"
	ChannelEmail     Channel = "email"
	ChannelOther     Channel = "referral"
)

// DirectName labels visits without a referrer.
const DirectName = "Direct"

type known struct {
	name    string
	channel Channel
}

var knownReferrers = map[string]known{
	"google.com":     {"Google", ChannelSearch},
	"google.co.uk":   {"Google", ChannelSearch},
	"google.de":      {"Google", ChannelSearch},
	"google.fr":      {"Google", ChannelSearch},
	"google.es":      {"Google", ChannelSearch},
	"google.it":      {"Google", ChannelSearch},
	"google.ca":      {"Google", ChannelSearch},
	"google.com.au":  {"Google", ChannelSearch},
	"google.co.jp":   {"Google", ChannelSearch},
	"google.com.br":  {"Google", ChannelSearch},
	"bing.com":       {"Bing", ChannelSearch},
	"duckduckgo.com": {"DuckDuckGo", ChannelSearch},
	"yahoo.com":      {"Yahoo", ChannelSearch},
	"baidu.com":      {"Baidu", ChannelSearch},
	"yandex.ru":      {"Yandex", ChannelSearch},
	"ecosia.org":     {"Ecosia", ChannelSearch},
	"kagi.com":       {"Kagi", ChannelSearch},

	"x.com":           {"X/Twitter", ChannelSocial},
	"twitter.com":     {"X/Twitter", ChannelSocial},
	"t.co":            {"X/Twitter", ChannelSocial},
	"facebook.com":    {"Facebook", ChannelSocial},
	"fb.com":          {"Facebook", ChannelSocial},
	"instagram.com":   {"Instagram", ChannelSocial},
	"linkedin.com":    {"LinkedIn", ChannelSocial},
	"lnkd.in":         {"LinkedIn", ChannelSocial},
	"tiktok.com":      {"TikTok", ChannelSocial},
	"pinterest.com":   {"Pinterest", ChannelSocial},
	"reddit.com":      {"Reddit", ChannelSocial},
	"threads.net":     {"Threads", ChannelSocial},
	"bsky.app":        {"Bluesky", ChannelSocial},
	"mastodon.social": {"Mastodon", ChannelSocial},
	"youtube.com":     {"YouTube", ChannelSocial},
	"youtu.be":        {"YouTube", ChannelSocial},
	"discord.com":     {"Discord", ChannelSocial},
	"t.me":            {"Telegram", ChannelSocial},
	"slack.com":       {"Slack", ChannelSocial},

	"news.ycombinator.com": {"Hacker News", ChannelCommunity},
	"lobste.rs":            {"Lobsters", ChannelCommunity},
	"producthunt.com":      {"Product Hunt", ChannelCommunity},
	"indiehackers.com":     {"Indie Hackers", ChannelCommunity},
	"dev.to":               {"DEV Community", ChannelCommunity},
	"hashnode.com":         {"Hashnode", ChannelCommunity},
	"medium.com":           {"Medium", ChannelCommunity},
	"substack.com":         {"Substack", ChannelCommunity},
	"github.com":           {"GitHub", ChannelCommunity},
	"gitlab.com":           {"GitLab", ChannelCommunity},
	"stackoverflow.com":    {"Stack Overflow", ChannelCommunity},

	"mail.google.com":    {"Gmail", ChannelEmail},
	"outlook.live.com":   {"Outlook", ChannelEmail},
	"outlook.office.com": {"Outlook", ChannelEmail},
	"mail.yahoo.com":     {"Yahoo Mail", ChannelEmail},
	"mail.proton.me":     {"Proton Mail", ChannelEmail},
}

// Source is a classified referrer.
type Source struct {
	Host    string  `json:"host"`
	Name    string  `json:"name"`
	Channel Channel `json:"channel"`
}

// Parse classifies a raw Referer value. Empty or unparseable values are
// Direct; app referrers such as android-app://com.google.android.gm keep
// the package name as host.
func Parse(raw string) Source {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Source{Name: DirectName, Channel: ChannelDirect}
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return Source{Name: DirectName, Channel: ChannelDirect}
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if k, ok := lookup(host); ok {
		return Source{Host: host, Name: k.name, Channel: k.channel}
	}
	return Source{Host: host, Name: host, Channel: ChannelOther}
}

// FriendlyName returns the display name for a hostname; unknown hosts are
// returned without their www. prefix.
func FriendlyName(hostname string) string {
	host := strings.TrimPrefix(strings.ToLower(hostname), "www.")
	if k, ok := lookup(host); ok {
		return k.name
	}
	return host
}

// lookup matches host or its closest known parent domain.
func lookup(host string) (known, bool) {
	for h := host; h != ""; {
		if k, ok := knownReferrers[h]; ok {
			return k, true
		}
		dot := strings.IndexByte(h, '.')
		if dot < 0 {
			break
		}
		h = h[dot+1:]
	}
	return known{}, false
}
