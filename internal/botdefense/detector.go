package botdefense

import (
	"net/http"
	"strings"
)

// minimum score to consider a request as bot-like
const BotScoreThreshold = 40

// known bot user-agent patterns (case-insensitive matching)
var botPatterns = []string{
	// generic bot indicators
	"bot",
	"crawler",
	"spider",
	"scraper",
	"fetch",
	"scan",
	// link previews that don't say "bot"
	"facebookexternalhit",
	"whatsapp",
	"skypeuripreview",
	"embedly",
	"preview",
	// cli tools
	"curl",
	"wget",
	"httpie",
	// programming libraries
	"python-requests",
	"python-urllib",
	"go-http-client",
	"java",
	"node-fetch",
	"axios",
	"libwww",
	"apache-httpclient",
	"okhttp",
	// headless browsers (when exposed)
	"headless",
	"phantomjs",
	"selenium",
	"puppeteer",
	"playwright",
	// specific scrapers
	"scrapy",
	"httrack",
}

// legitimate browser indicators
var browserIndicators = []string{
	"mozilla",
	"chrome",
	"safari",
	"firefox",
	"edge",
	"opera",
}

// contains detected bot indicators
type BotSignals struct {
	EmptyUserAgent  bool
	ShortUserAgent  bool
	BotPatternMatch string
	MissingHeaders  []string
	Score           int
}

// reports whether the signals cross BotScoreThreshold
func (s *BotSignals) IsBot() bool {
	return s.Score >= BotScoreThreshold
}

// analyzes a request for bot indicators
// returns signals and a score (higher = more likely bot)
func DetectBot(r *http.Request) *BotSignals {
	signals := &BotSignals{}
	userAgent := r.Header.Get("User-Agent")
	userAgentLower := strings.ToLower(userAgent)

	// check user-agent
	if userAgent == "" {
		signals.EmptyUserAgent = true
		signals.Score += 50
	} else if len(userAgent) < 20 {
		signals.ShortUserAgent = true
		signals.Score += 30
	}

	// check for bot patterns in user-agent
	for _, pattern := range botPatterns {
		if strings.Contains(userAgentLower, pattern) {
			signals.BotPatternMatch = pattern
			signals.Score += 40
			break
		}
	}

	// check for missing typical browser headers
	for _, h := range []string{"Accept-Language", "Accept-Encoding", "Accept"} {
		if r.Header.Get(h) == "" {
			signals.MissingHeaders = append(signals.MissingHeaders, h)
			signals.Score += 10
		}
	}

	// connection: close is often used by scripts
	if r.Header.Get("Connection") == "close" && !hasBrowserIndicator(userAgentLower) {
		signals.Score += 15
	}

	// reduce score if it looks like a real browser
	if signals.BotPatternMatch == "" && hasBrowserIndicator(userAgentLower) && len(signals.MissingHeaders) == 0 {
		signals.Score = max(signals.Score-20, 0)
	}

	return signals
}

// checks if the user-agent contains browser indicators
func hasBrowserIndicator(userAgentLower string) bool {
	for _, indicator := range browserIndicators {
		if strings.Contains(userAgentLower, indicator) {
			return true
		}
	}
	return false
}

// checks if the request path looks like probing.
// short codes are base62, so none of these can be a real link.
func IsSuspiciousPath(path string) bool {
	pathLower := strings.ToLower(path)

	suspiciousPatterns := []string{
		".php",
		".asp",
		".aspx",
		".jsp",
		".cgi",
		"..%2f", // path traversal
		"../",
		"%00", // null byte
		"<script",
		"union+select",
		"' or '",
	}

	for _, pattern := range suspiciousPatterns {
		if strings.Contains(pathLower, pattern) {
			return true
		}
	}

	return false
}
