package logparse

import (
	"regexp"
	"strings"

	"github.com/tinytelemetry/accesslens/internal/model"
)

// MobileRegex matches user agents of phones and tablets.
var MobileRegex = regexp.MustCompile(`(?i)mobile|android|iphone|ipad|ipod`)

// crawlerTokens identify well-known crawlers for device classification.
var crawlerTokens = []string{
	"gptbot",
	"bingbot",
	"googlebot",
	"bytespider",
	"petalbot",
}

// toolTokens identify scripted clients, scanners and crawlers. A user agent
// containing any of them (case-insensitive) is an automated client.
var toolTokens = []string{
	"curl",
	"wget",
	"scrapy",
	"python-requests",
	"go-http-client",
	"nikto",
	"nmap",
	"zgrab",
	"masscan",
	"slowhttptest",
	"bytespider",
	"petalbot",
	"gptbot",
	"bingbot",
}

// ClassifyDevice maps a user agent to bot, mobile or desktop.
// Crawler tokens win over mobile tokens.
func ClassifyDevice(userAgent string) model.DeviceClass {
	ua := strings.ToLower(userAgent)
	for _, tok := range crawlerTokens {
		if strings.Contains(ua, tok) {
			return model.DeviceBot
		}
	}
	if MobileRegex.MatchString(ua) {
		return model.DeviceMobile
	}
	return model.DeviceDesktop
}

// IsToolAgent reports whether the user agent belongs to a known automated
// client.
func IsToolAgent(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	ua := strings.ToLower(userAgent)
	for _, tok := range toolTokens {
		if strings.Contains(ua, tok) {
			return true
		}
	}
	return false
}
