package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if FileExists(path) {
		t.Fatal("file should not exist yet")
	}
	if _, err := FileSize(path); err == nil {
		t.Error("expected error for missing file")
	}

	if err := os.WriteFile(path, []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Error("file should exist")
	}
	if size, err := FileSize(path); err != nil || size != 5 {
		t.Errorf("FileSize = %d, %v; want 5", size, err)
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(1.5); got != 1500*time.Millisecond {
		t.Errorf("Seconds(1.5) = %v", got)
	}
}

func TestFormatSeconds(t *testing.T) {
	cases := map[float64]string{
		0:       "0.000",
		4.5:     "4.500",
		12.3456: "12.346",
		-1:      "0.000",
	}
	for in, want := range cases {
		if got := FormatSeconds(in); got != want {
			t.Errorf("FormatSeconds(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestParseFrameRate(t *testing.T) {
	if got := ParseFrameRate("30000/1001"); got < 29.96 || got > 29.98 {
		t.Errorf("unexpected frame rate %v", got)
	}
	if got := ParseFrameRate("30/0"); got != 0 {
		t.Errorf("expected 0 for zero denominator, got %v", got)
	}
}

func TestSlug(t *testing.T) {
	if got := Slug("LeBron James (2023)"); got != "lebron-james-2023" {
		t.Errorf("unexpected slug %q", got)
	}
	if got := Slug("!!!"); got != "subject" {
		t.Errorf("expected fallback slug, got %q", got)
	}
}
