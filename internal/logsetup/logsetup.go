// Package logsetup configures the standard logger for all muxsweep
// commands. Import it for its side effect:
//
//	import _ "github.com/stabnet/muxsweep/internal/logsetup"
package logsetup

import "log"

func init() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}
