package main

//go-build: CGO_ENABLED=0

import (
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/bridge.go/pkg/env"
	"github.com/robotalks/bridge.go/pkg/framework"
)

func init() {
	env.SetupFlags()
}

func main() {
	if err := env.Parse(); err != nil {
		log.Fatalln(err)
	}
	defer glog.Flush()

	conf := env.NewConfig()
	e := conf.MustNewEnv()
	glog.Infof("bridge %s", conf)
	runner := framework.NewRunner().HandleSignals().Go(e.Runnables()...)
	if err := runner.Wait(); err != nil {
		glog.Errorf("bridge stopped: %v", err)
		glog.Flush()
		log.Fatalln(err)
	}
}
