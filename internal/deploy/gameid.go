package deploy

import (
	"regexp"
	"strconv"
	"time"

	"github.com/lobinuxsoft/devkit-deploy/pkg/config"
)

const fallbackGameID = "game"

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// GameID derives the remote title id from the project name. Incremental
// uploads get a unix-seconds suffix so every build becomes its own title.
func GameID(projectName string, method config.UploadMethod, now time.Time) string {
	id := nonAlphanumeric.ReplaceAllString(projectName, "")
	if id == "" {
		id = fallbackGameID
	}
	if method == config.Incremental {
		id += "_" + strconv.FormatInt(now.Unix(), 10)
	}
	return id
}
