package log

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

// EnableDebug switches L to trace level when TRACE is set in the
// environment.
func EnableDebug() {
	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}
