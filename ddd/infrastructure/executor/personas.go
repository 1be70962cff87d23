package executor

import (
	"strings"
	"time"

	"medkit-service/ddd/domain/vo"
)

const (
	chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"
)

var acceptAny = []vo.Header{
	{Name: "Accept", Value: "*/*"},
	{Name: "Accept-Language", Value: "en-US,en;q=0.9"},
}

// Planner 尝试目录: the ordered client personas for each stage.
type Planner struct {
	cookiesFromBrowser string
	hardwareAccel      string
	backoff            time.Duration
}

// NewPlanner builds the catalog. backoff is attached as the hint on the later,
// heavier download attempts.
func NewPlanner(cookiesFromBrowser, hardwareAccel string, backoff time.Duration) *Planner {
	return &Planner{
		cookiesFromBrowser: strings.TrimSpace(cookiesFromBrowser),
		hardwareAccel:      strings.TrimSpace(hardwareAccel),
		backoff:            backoff,
	}
}

// ExtractionAttempts returns ios, web, then android.
func (p *Planner) ExtractionAttempts() []vo.Attempt {
	return []vo.Attempt{
		vo.NewAttempt("ios", p.withCookies(vo.Persona{Client: "ios"}), "", 0),
		vo.NewAttempt("web", p.withCookies(vo.Persona{Client: "web", UserAgent: chromeUA}), "", 0),
		vo.NewAttempt("android", p.withCookies(vo.Persona{Client: "android"}), "", 0),
	}
}

// DownloadAttempts returns the persona ladder, each carrying the same selector.
func (p *Planner) DownloadAttempts(selector string) []vo.Attempt {
	personas := []struct {
		name    string
		persona vo.Persona
		backoff time.Duration
	}{
		{"android", vo.Persona{
			Client:    "android",
			UserAgent: "com.google.android.youtube/19.09.37 (Linux; U; Android 11) gzip",
			Headers:   acceptAny,
		}, 0},
		{"android_creator", vo.Persona{
			Client:    "android_creator",
			UserAgent: "com.google.android.apps.youtube.creator/22.30.100 (Linux; U; Android 11) gzip",
			Headers:   acceptAny,
		}, 0},
		{"web", vo.Persona{
			Client:    "web",
			UserAgent: chromeUA,
			Headers: append(append([]vo.Header(nil), acceptAny...),
				vo.Header{Name: "Sec-Ch-Ua", Value: `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`},
				vo.Header{Name: "Sec-Ch-Ua-Mobile", Value: "?0"},
				vo.Header{Name: "Sec-Ch-Ua-Platform", Value: `"Windows"`},
				vo.Header{Name: "Sec-Fetch-Mode", Value: "cors"},
			),
		}, 0},
		{"mweb", vo.Persona{Client: "mweb", UserAgent: iphoneUA, Headers: acceptAny}, p.backoff},
		{"minimal", vo.Persona{UserAgent: "yt-dlp/2025.07.21", Retries: 5}, p.backoff},
	}
	out := make([]vo.Attempt, 0, len(personas))
	for _, item := range personas {
		out = append(out, vo.NewAttempt(item.name, p.withCookies(item.persona), selector, item.backoff))
	}
	return out
}

// ConversionAttempts tries hardware decoding first when configured, then software.
func (p *Planner) ConversionAttempts() []vo.Attempt {
	software := vo.NewAttempt("software", vo.Persona{}, "", 0)
	if p.hardwareAccel == "" {
		return []vo.Attempt{software}
	}
	hw := vo.NewAttempt("hwaccel-"+p.hardwareAccel, vo.Persona{ExtraArgs: []string{"-hwaccel", p.hardwareAccel}}, "", 0)
	return []vo.Attempt{hw, software}
}

func (p *Planner) withCookies(persona vo.Persona) vo.Persona {
	persona.CookiesFromBrowser = p.cookiesFromBrowser
	return persona
}
