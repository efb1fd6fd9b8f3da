package uploader

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildKey(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	key := BuildKey("My Great Video", "id-123", "/tmp/id-123.mp4", now)
	assert.Equal(t, "youtube_videos/20260314_150926_My_Great_Video_id-123.mp4", key)
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"plain", "hello", "hello"},
		{"spaces to underscores", "a b c", "a_b_c"},
		{"strips punctuation", "so: what?! (remix)", "so_what_remix"},
		{"keeps dashes", "re-upload_v2", "re-upload_v2"},
		{"drops non-ascii", "日本語タイトル mix", "mix"},
		{"empty falls back", "!!!", "video"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeTitle(tt.title))
		})
	}
}

func TestSanitizeTitle_CapsLength(t *testing.T) {
	long := strings.Repeat("x", 200)
	assert.Len(t, sanitizeTitle(long), maxTitleLen)
}
