package user_agent

import (
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Unknown is reported for any field the rules could not resolve.
const Unknown = "Unknown"

// Device form factors.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceTV      = "tv"
	DeviceConsole = "console"
	DeviceBot     = "bot"
)

type UserAgent struct {
	UserAgent      string
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	Device         string
	Mobile         bool
	Tablet         bool
	Desktop        bool
	Bot            bool
}

//go:embed database/browsers.yml
//go:embed database/oss.yml
//go:embed database/devices.yml
//go:embed database/bots.yml
var databaseFiles embed.FS

// Rule is one entry of a rules file. Name, Version and Device may reference
// capture groups as $1, $2, ...
type Rule struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Device  string `yaml:"device"`
}

type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{compiled: make(map[string]*pcre.Regexp)}
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

var (
	parser *Parser
	once   sync.Once
)

// Parser resolves user agents against the embedded rule files.
type Parser struct {
	browsers   []Rule
	oss        []Rule
	devices    []Rule
	bots       []Rule
	regexCache *regexCache
}

func loadRules(file string) []Rule {
	data, err := databaseFiles.ReadFile(file)
	if err != nil {
		slog.Default().Error("Failed to read user agent rules", slog.String("file", file), slog.Any("error", err))
		return nil
	}
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		slog.Default().Error("Failed to parse user agent rules", slog.String("file", file), slog.Any("error", err))
		return nil
	}
	return rules
}

func getParser() *Parser {
	once.Do(func() {
		parser = &Parser{
			browsers:   loadRules("database/browsers.yml"),
			oss:        loadRules("database/oss.yml"),
			devices:    loadRules("database/devices.yml"),
			bots:       loadRules("database/bots.yml"),
			regexCache: newRegexCache(),
		}
	})
	return parser
}

// match returns the first rule matching userAgent together with its captures.
func (p *Parser) match(rules []Rule, userAgent string) (*Rule, []string) {
	for i := range rules {
		regex, err := p.regexCache.get(rules[i].Regex)
		if err != nil {
			continue
		}
		if matches := regex.FindStringSubmatch(userAgent); len(matches) > 0 {
			return &rules[i], matches
		}
	}
	return nil, nil
}

// expand replaces $1, $2, ... with capture groups and trims leftovers.
func expand(template string, matches []string) string {
	if template == "" {
		return ""
	}
	out := template
	for i := len(matches) - 1; i >= 1; i-- {
		out = strings.ReplaceAll(out, fmt.Sprintf("$%d", i), matches[i])
	}
	return strings.Trim(strings.TrimSpace(out), ".")
}

func (p *Parser) parseBot(userAgent string) (string, bool) {
	rule, matches := p.match(p.bots, userAgent)
	if rule == nil {
		return "", false
	}
	name := expand(rule.Name, matches)
	if name == "" {
		name = "Bot"
	}
	// Casers keep state and are not safe for concurrent use.
	return cases.Title(language.English, cases.NoLower).String(name), true
}

func (p *Parser) parseBrowser(userAgent string) (string, string) {
	rule, matches := p.match(p.browsers, userAgent)
	if rule == nil {
		return Unknown, Unknown
	}
	return orUnknown(expand(rule.Name, matches)), orUnknown(expand(rule.Version, matches))
}

func (p *Parser) parseOS(userAgent string) (string, string) {
	rule, matches := p.match(p.oss, userAgent)
	if rule == nil {
		return Unknown, Unknown
	}
	return orUnknown(expand(rule.Name, matches)), orUnknown(expand(rule.Version, matches))
}

func (p *Parser) parseDevice(userAgent string) string {
	rule, _ := p.match(p.devices, userAgent)
	if rule == nil || rule.Device == "" {
		return DeviceDesktop
	}
	return rule.Device
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

// ParseUserAgent never fails; fields it cannot resolve are reported as Unknown.
func ParseUserAgent(userAgent string) UserAgent {
	p := getParser()

	if strings.TrimSpace(userAgent) == "" {
		return UserAgent{
			UserAgent:      userAgent,
			Browser:        Unknown,
			BrowserVersion: Unknown,
			OS:             Unknown,
			OSVersion:      Unknown,
			Device:         DeviceDesktop,
			Desktop:        true,
		}
	}

	if name, ok := p.parseBot(userAgent); ok {
		return UserAgent{
			UserAgent:      userAgent,
			Browser:        name,
			BrowserVersion: Unknown,
			OS:             Unknown,
			OSVersion:      Unknown,
			Device:         DeviceBot,
			Bot:            true,
		}
	}

	browser, browserVersion := p.parseBrowser(userAgent)
	os, osVersion := p.parseOS(userAgent)
	device := p.parseDevice(userAgent)

	return UserAgent{
		UserAgent:      userAgent,
		Browser:        browser,
		BrowserVersion: browserVersion,
		OS:             os,
		OSVersion:      osVersion,
		Device:         device,
		Mobile:         device == DeviceMobile,
		Tablet:         device == DeviceTablet,
		Desktop:        device == DeviceDesktop,
	}
}
