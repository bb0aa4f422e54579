// Package main runs the admin override HTTP server.
package main

import (
	"flag"
	"os"

	"github.com/golang/glog"
)

func main() {
	// glog reads its flags from the standard flag set.
	_ = flag.Set("logtostderr", "true")
	defer glog.Flush()

	if err := newRootCmd().Execute(); err != nil {
		glog.Errorf("override-server: %v", err)
		glog.Flush()
		os.Exit(1)
	}
}
