package log

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

var L hclog.Logger

func init() {
	L = hclog.New(&hclog.LoggerOptions{
		Name:   "pintos",
		Output: os.Stderr,
	})
	L.SetLevel(hclog.Info)

	EnableDebug()
}
