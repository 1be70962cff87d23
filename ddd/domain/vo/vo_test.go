package vo

import (
	"testing"
	"time"
)

func TestJobStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusCancelled, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusCancelled, true},
		{JobStatusProcessing, JobStatusPending, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusProcessing, false},
		{JobStatusCancelled, JobStatusPending, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestParseFrameRate(t *testing.T) {
	cases := []struct {
		in   string
		fps  float64
		str  string
		good bool
	}{
		{"30000/1001", 30000.0 / 1001.0, "29.97", true},
		{"25/1", 25, "25", true},
		{"60", 60, "60", true},
		{"23.976", 23.976, "23.98", true},
		{"0/0", 0, "unknown", false},
		{"30/0", 0, "unknown", false},
		{"__import__('os')", 0, "unknown", false},
		{"", 0, "unknown", false},
		{"-5", 0, "unknown", false},
	}
	for _, c := range cases {
		fr := ParseFrameRate(c.in)
		if fr.IsKnown() != c.good {
			t.Errorf("%q known = %v", c.in, fr.IsKnown())
		}
		if fr.String() != c.str {
			t.Errorf("%q string = %q, want %q", c.in, fr.String(), c.str)
		}
		if c.good && (fr.FPS()-c.fps > 0.001 || c.fps-fr.FPS() > 0.001) {
			t.Errorf("%q fps = %v, want %v", c.in, fr.FPS(), c.fps)
		}
	}
}

func TestParseQuality(t *testing.T) {
	for _, in := range []string{"audio", "144p", "720p", "2160p", "best", "worst", "original", "", "1080P"} {
		if _, err := ParseQuality(in); err != nil {
			t.Errorf("ParseQuality(%q): %v", in, err)
		}
	}
	if _, err := ParseQuality("4k"); err == nil {
		t.Fatalf("expected error for 4k")
	}
	if Quality("720p").Height() != 720 {
		t.Fatalf("720p height")
	}
}

func TestLabelForHeight(t *testing.T) {
	cases := map[int]string{2300: "2160p", 1440: "1440p", 1079: "720p", 360: "360p", 100: "144p"}
	for h, want := range cases {
		if got := LabelForHeight(h); got != want {
			t.Errorf("LabelForHeight(%d) = %s, want %s", h, got, want)
		}
	}
}

func TestAttemptIsImmutable(t *testing.T) {
	headers := []Header{{Name: "X-A", Value: "1"}}
	a := NewAttempt("web", Persona{Client: "web", Headers: headers}, "137+140", time.Second)
	headers[0].Value = "changed"
	p := a.Persona()
	p.Headers[0].Value = "changed again"
	if got := a.Persona().Headers[0].Value; got != "1" {
		t.Fatalf("header leaked: %s", got)
	}
	b := a.WithSelector(GenericSelector)
	if a.Selector() != "137+140" || b.Selector() != GenericSelector || b.Name() != "web" {
		t.Fatalf("unexpected selectors a=%s b=%s", a.Selector(), b.Selector())
	}
}

func TestOutputFormats(t *testing.T) {
	if !IsSupportedOutput(JobKindDownload, "mp4") || IsSupportedOutput(JobKindDownload, "mkv") {
		t.Fatalf("download formats")
	}
	if !IsSupportedOutput(JobKindConversion, "mkv") || IsSupportedOutput(JobKindConversion, "exe") {
		t.Fatalf("conversion formats")
	}
	if CategoryOf(".FLAC") != CategoryAudio {
		t.Fatalf("flac category")
	}
	if !CanConvert(CategoryVideo, CategoryAudio) || CanConvert(CategoryAudio, CategoryVideo) || CanConvert("", CategoryAudio) {
		t.Fatalf("conversion matrix")
	}
}
