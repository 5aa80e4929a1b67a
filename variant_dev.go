//go:build !prod

package smokerlog

import (
	"io/fs"
	"os"
)

// Development builds serve webui/ from the working directory so the page can
// be edited without rebuilding.
var webuiFiles fs.FS = os.DirFS(".")

func openBrowser(url string) {
	plotLogger().WithField("url", url).Info("development build, open the plot manually")
}
