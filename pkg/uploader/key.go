package uploader

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// KeyPrefix is the folder all video artifacts are stored under.
const KeyPrefix = "youtube_videos"

// maxTitleLen bounds the sanitized title segment of an object key.
const maxTitleLen = 50

// BuildKey derives the object key for an artifact:
//
//	youtube_videos/<timestamp>_<clean_title>_<download_id><ext>
//
// The title is reduced to alphanumerics, spaces, dashes and underscores, with
// spaces collapsed to underscores and length capped, so keys stay portable
// across S3-compatible stores.
func BuildKey(title, downloadID, localPath string, now time.Time) string {
	return fmt.Sprintf("%s/%s_%s_%s%s",
		KeyPrefix,
		now.Format("20060102_150405"),
		sanitizeTitle(title),
		downloadID,
		filepath.Ext(localPath),
	)
}

func sanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) && r < unicode.MaxASCII, unicode.IsDigit(r) && r < unicode.MaxASCII:
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		case r == '-' || r == '_':
			b.WriteRune(r)
		}
	}
	clean := strings.Trim(b.String(), "_")
	if len(clean) > maxTitleLen {
		clean = clean[:maxTitleLen]
	}
	if clean == "" {
		clean = "video"
	}
	return clean
}
