package main

import (
	"fmt"
	"net/http"
	"os"

	_ "net/http/pprof"

	"github.com/lin-stream/streamspy/pkg/app"
	"github.com/lin-stream/streamspy/pkg/config"
	"github.com/lin-stream/streamspy/pkg/log"
)

var (
	version     string
	commitId    string
	releaseTime string
	goVersion   string
	author      string
)

func main() {
	// init config
	err := config.ConfigInit()
	if err != nil {
		fmt.Printf("%v", err)
	}
	// init log
	log.LogInit(config.ConfigGlobal.Log.Path, log.LevelTransform(config.ConfigGlobal.Log.Level))

	if os.Getenv("ENABLE_STREAMSPY_PPROF") == "true" {
		go func() {
			log.Loger.Info("Starting pprof server on :6060")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				log.Loger.Error("pprof server failed: %v", err)
			}
		}()
	}

	cmd := app.NewCmd()
	app.SubCmdInit(cmd)
	cmd.RootCmd.Execute()
}

func init() {
	app.Version = version
	app.CommitId = commitId
	app.ReleaseTime = releaseTime
	app.GoVersion = goVersion
	app.Author = author
}
