//go:build prod

package smokerlog

import (
	"embed"
	"os/exec"
	"runtime"
)

//go:embed webui
var webuiFiles embed.FS

func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	case "darwin":
		cmd = "open"
	default:
		cmd = "xdg-open"
	}
	args = append(args, url)
	if err := exec.Command(cmd, args...).Start(); err != nil {
		plotLogger().WithError(err).WithField("url", url).Warn("failed to start web browser, open the plot manually")
	}
}
