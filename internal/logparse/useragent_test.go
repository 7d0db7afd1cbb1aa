package logparse

import (
	"testing"

	"github.com/tinytelemetry/accesslens/internal/model"
)

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		input    string
		expected model.DeviceClass
	}{
		// Desktop browsers
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0", model.DeviceDesktop},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) Safari/605.1.15", model.DeviceDesktop},
		{"", model.DeviceDesktop},
		// Mobile
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", model.DeviceMobile},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8)", model.DeviceMobile},
		{"Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X)", model.DeviceMobile},
		{"MOBILE browser", model.DeviceMobile},
		// Crawlers
		{"Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko; compatible; GPTBot/1.0)", model.DeviceBot},
		{"Mozilla/5.0 (compatible; bingbot/2.0)", model.DeviceBot},
		// Bot check wins over mobile
		{"Mozilla/5.0 (Linux; Android 6.0.1) Mobile Safari (compatible; Googlebot/2.1)", model.DeviceBot},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ClassifyDevice(tt.input)
			if got != tt.expected {
				t.Errorf("ClassifyDevice(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsToolAgent(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"curl/8.4.0", true},
		{"Wget/1.21", true},
		{"python-requests/2.31.0", true},
		{"Go-http-client/1.1", true},
		{"Scrapy/2.11 (+https://scrapy.org)", true},
		{"Mozilla/5.00 (Nikto/2.1.6)", true},
		{"masscan/1.3", true},
		{"Mozilla/5.0 (compatible; Bytespider)", true},
		{"Mozilla/5.0 (Windows NT 10.0) Firefox/121.0", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := IsToolAgent(tt.input)
			if got != tt.expected {
				t.Errorf("IsToolAgent(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
