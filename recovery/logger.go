package recovery

import "github.com/juju/loggo"

var logger = loggo.GetLogger("searchsync.recovery")
