package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Debug     bool
	TestMode  bool
	Env       string
	Build     string
	AppName   string
	SecretKey string

	Server struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	Session struct {
		CookieName string
		// TokenTTL is the lifetime of the credential cookie and of cached
		// session reads keyed on it.
		TokenTTL     time.Duration
		CacheTTL     time.Duration
		ScopeBackend string // memory | redis | postgres
	}

	Upstream struct {
		BaseURL string
		Timeout time.Duration
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	Database struct {
		Engine     string
		Name       string
		User       string
		Password   string
		Host       string
		DisableTLS bool
	}

	RollbarToken string
}

// NewConfig loads the app configuration from defaults, an optional
// config/.env.<env> file and environment variables prefixed with the ENV name.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Darasa")
	v.SetDefault("secretKey", "h2x)#*c2(#yg4h^$cegm2emypoq5-wer)enb$+57=dz&uo")
	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverShutdownTimeout", 20*time.Second)
	v.SetDefault("sessionCookieName", "darasa_token")
	v.SetDefault("sessionTokenTTL", 7*24*time.Hour)
	v.SetDefault("sessionCacheTTL", 7*24*time.Hour)
	v.SetDefault("sessionScopeBackend", "memory")
	v.SetDefault("apiBaseURL", "http://localhost:9000")
	v.SetDefault("upstreamTimeout", 10*time.Second)
	v.SetDefault("redisAddr", "")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)
	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbName", "darasa")
	v.SetDefault("dbUser", "")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbHost", "localhost:5432")
	v.SetDefault("dbDisableTLS", true)
	v.SetDefault("rollbarToken", "")

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		Env:          env,
		Build:        v.GetString("build"),
		AppName:      v.GetString("appName"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
	}
	conf.Server.Host = v.GetString("serverHost")
	conf.Server.DebugHost = v.GetString("serverDebugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("serverShutdownTimeout")
	conf.Session.CookieName = v.GetString("sessionCookieName")
	conf.Session.TokenTTL = v.GetDuration("sessionTokenTTL")
	conf.Session.CacheTTL = v.GetDuration("sessionCacheTTL")
	conf.Session.ScopeBackend = v.GetString("sessionScopeBackend")
	conf.Upstream.BaseURL = strings.TrimRight(v.GetString("apiBaseURL"), "/")
	conf.Upstream.Timeout = v.GetDuration("upstreamTimeout")
	conf.Redis.Addr = v.GetString("redisAddr")
	conf.Redis.Password = v.GetString("redisPassword")
	conf.Redis.DB = v.GetInt("redisDB")
	conf.Database.Engine = v.GetString("dbEngine")
	conf.Database.Name = v.GetString("dbName")
	conf.Database.User = v.GetString("dbUser")
	conf.Database.Password = v.GetString("dbPassword")
	conf.Database.Host = v.GetString("dbHost")
	conf.Database.DisableTLS = v.GetBool("dbDisableTLS")
	return conf
}
