package handlers

import (
	"net/http"
	"sync"
)

// VersionResponse is the body returned by GET /version.
type VersionResponse struct {
	App       string `json:"app"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

var (
	versionMu   sync.RWMutex
	versionInfo = VersionResponse{App: "vidgrab", Version: "dev"}
)

// SetVersionInfo records the build metadata served by /version. Called
// once at startup from the root command.
func SetVersionInfo(version, commit, buildDate string) {
	versionMu.Lock()
	defer versionMu.Unlock()
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// VersionHandler serves GET /version.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	versionMu.RLock()
	resp := versionInfo
	versionMu.RUnlock()
	writeJSON(w, http.StatusOK, resp)
}
