package s3

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidgrab/vidgrab/pkg/uploader"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid minimal", Config{Bucket: "videos"}, false},
		{"valid with credentials", Config{Bucket: "videos", AccessKeyID: "AKID", SecretAccessKey: "secret"}, false},
		{"missing bucket", Config{}, true},
		{"access key without secret", Config{Bucket: "videos", AccessKeyID: "AKID"}, true},
		{"secret without access key", Config{Bucket: "videos", SecretAccessKey: "secret"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				var cfgErr *ConfigError
				require.ErrorAs(t, err, &cfgErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPublicURL(t *testing.T) {
	u := &Uploader{bucket: "videos", region: "eu-west-1"}
	got := u.PublicURL("youtube_videos/20260830_clip_abc.mp4")
	assert.Equal(t, "https://videos.s3.eu-west-1.amazonaws.com/youtube_videos/20260830_clip_abc.mp4", got)
}

func TestUploadMissingLocalFileIsUploadFailure(t *testing.T) {
	u := &Uploader{bucket: "videos", region: "us-east-1"}

	missing := filepath.Join(t.TempDir(), "vanished.mp4")
	_, err := u.Upload(t.Context(), missing, "youtube_videos/vanished.mp4")
	require.Error(t, err)

	// A vanished artifact is a storage failure, not an internal one.
	assert.True(t, uploader.IsUploadFailed(err))

	var upErr *uploader.UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "Upload", upErr.Op)
	assert.Equal(t, "youtube_videos/vanished.mp4", upErr.Key)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "video/mp4", contentType("clip.mp4"))
	assert.Equal(t, "application/octet-stream", contentType("clip.unknownext"))
}
