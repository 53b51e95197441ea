package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	echoapi "github.com/darasahq/darasa/apps/api/echo"
	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/session"
	logsvc "github.com/darasahq/darasa/services/logger"
	upstreamsvc "github.com/darasahq/darasa/services/upstream"
	memcache "github.com/darasahq/darasa/storage/cache/memory"
	rediscache "github.com/darasahq/darasa/storage/cache/redis"
	inmemscope "github.com/darasahq/darasa/storage/scope/inmem"
	pgscope "github.com/darasahq/darasa/storage/scope/postgres"
	redisscope "github.com/darasahq/darasa/storage/scope/redis"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	scope, cache, cleanup, err := setUpStores(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up stores: %v", err), err)
	}
	defer cleanup()

	upstream := upstreamsvc.NewClient(conf, logger)

	sessions := session.NewManager(session.Deps{
		Scope:         scope,
		Cache:         cache,
		Profiles:      upstream,
		Subscriptions: upstream,
		Logger:        logger,
		CacheTTL:      conf.Session.CacheTTL,
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Sessions:   sessions,
		Auth:       upstream,
		Validate:   validate,
		Translator: translator,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpStores picks the scope-store and cache backends from config. Redis
// backs both when configured; the scope store may use postgres instead.
func setUpStores(conf *core.Config) (session.ScopeStore, session.Cache, func(), error) {
	cleanup := func() {}

	var rdb *redis.Client
	if conf.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return nil, nil, cleanup, err
		}
		cleanup = func() { _ = rdb.Close() }
	}

	var cache session.Cache = memcache.New()
	if rdb != nil {
		cache = rediscache.New(rdb)
	}

	switch conf.Session.ScopeBackend {
	case "redis":
		if rdb == nil {
			return nil, nil, cleanup, fmt.Errorf("scope backend %q requires redisAddr", conf.Session.ScopeBackend)
		}
		return redisscope.New(rdb), cache, cleanup, nil
	case "postgres":
		store, err := pgscope.Open(conf)
		if err != nil {
			return nil, nil, cleanup, err
		}
		prev := cleanup
		cleanup = func() { _ = store.Close(); prev() }
		return store, cache, cleanup, nil
	default:
		return inmemscope.New(), cache, cleanup, nil
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
