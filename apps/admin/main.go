package main

import (
	"fmt"
	"log"
	"os"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/session"
	pgscope "github.com/darasahq/darasa/storage/scope/postgres"
	redisscope "github.com/darasahq/darasa/storage/scope/redis"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	scope, err := openScopeStore(conf)
	errAndDie(err)

	cli := commandLine{scope: scope}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func openScopeStore(conf *core.Config) (session.ScopeStore, error) {
	switch conf.Session.ScopeBackend {
	case "redis":
		return redisscope.Open(conf)
	case "postgres":
		return pgscope.Open(conf)
	default:
		return nil, fmt.Errorf("scope backend %q is not inspectable (in-process memory)", conf.Session.ScopeBackend)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
