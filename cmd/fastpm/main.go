// fastpm samples an instrument in an isolated producer and reads the freshest
// value on a fixed tick, the way a GUI update loop would.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/usnistgov/fastpm"
)

var githash = "githash not computed"
var gitdate = "git date not computed"
var buildDate = "build date not computed"

func setBuildInfo() {
	buildDate = strings.ReplaceAll(buildDate, ".", " ") // workaround for Make problems
	fastpm.Build.Date = buildDate
	fastpm.Build.Githash = githash
	fastpm.Build.Gitdate = gitdate
	fastpm.Build.Summary = fmt.Sprintf("fastpm version %s (git commit %s of %s)", fastpm.Build.Version, githash, gitdate)
	if host, err := os.Hostname(); err == nil {
		fastpm.Build.Host = host
	} else {
		fastpm.Build.Host = "host not detected"
	}
}

func main() {
	setBuildInfo()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
