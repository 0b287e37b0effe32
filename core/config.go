package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugAddress              string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine          string
		Host            string
		Port            string
		Name            string
		User            string
		Password        string
		AdminUser       string
		AdminPassword   string
		DisableTLS      bool
		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
		QueryTimeout    time.Duration
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
		QueueKey string
	}

	Config struct {
		Env                           string
		Build                         string
		AppName                       string
		Debug                         bool
		TestMode                      bool
		WorkDir                       string
		Storage                       string // postgres | memory
		LogLevel                      string
		SecretKey                     string
		FrontendBaseURL               string
		DefaultCurrency               string
		RollbarToken                  string
		SentryDSN                     string
		SendgridAPIKey                string
		PasswordResetTimeoutDelta     time.Duration
		EmailVerificationTimeoutDelta time.Duration
		Server                        ServerConfig
		Database                      DatabaseConfig
		Redis                         RedisConfig

		defaultFromEmail string
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

// Address returns the database "host:port".
func (dc DatabaseConfig) Address() string {
	if dc.Port == "" {
		return dc.Host
	}
	return dc.Host + ":" + dc.Port
}

// NewConfig loads the configuration of the current environment (ENV: DEV (default), TEST, QA, PROD).
// Values are read from the environment, prefixed by the environment name (e.g. PROD_DATABASE_HOST),
// after loading `config/.env.<env>` if it exists.
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("build", "develop")
	conf.SetDefault("appName", "Darasa")
	conf.SetDefault("storage", "postgres")
	conf.SetDefault("logLevel", "debug")
	conf.SetDefault("secretKey", "q7m!kc2&zd0b=3x@w9(rj+u1s^lpe5h$t8vnoa6f*gy)#i4")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "Darasa <noreply@localhost>")
	conf.SetDefault("defaultCurrency", "USD")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sentryDSN", "")
	conf.SetDefault("sendgridAPIKey", "")
	conf.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	conf.SetDefault("emailVerificationTimeoutDelta", 7*24*time.Hour)

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugAddress", ":4000")
	conf.SetDefault("server.readTimeout", 5*time.Second)
	conf.SetDefault("server.writeTimeout", 10*time.Second)
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "darasa")
	conf.SetDefault("database.user", "darasa")
	conf.SetDefault("database.password", "darasa")
	conf.SetDefault("database.adminUser", "")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.disableTLS", true)
	conf.SetDefault("database.maxOpenConns", 25)
	conf.SetDefault("database.maxIdleConns", 5)
	conf.SetDefault("database.connMaxLifetime", 30*time.Minute)
	conf.SetDefault("database.queryTimeout", 5*time.Second)

	conf.SetDefault("redis.address", "")
	conf.SetDefault("redis.password", "")
	conf.SetDefault("redis.db", 0)
	conf.SetDefault("redis.queueKey", "darasa:jobs")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
		conf.SetDefault("storage", "memory")
	case "PROD":
		conf.SetDefault("debug", false)
		conf.SetDefault("logLevel", "info")
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	workDir := Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Env:                           env,
		Build:                         conf.GetString("build"),
		AppName:                       conf.GetString("appName"),
		Debug:                         conf.GetBool("debug"),
		TestMode:                      conf.GetBool("testMode"),
		WorkDir:                       workDir,
		Storage:                       conf.GetString("storage"),
		LogLevel:                      conf.GetString("logLevel"),
		SecretKey:                     conf.GetString("secretKey"),
		FrontendBaseURL:               conf.GetString("frontendBaseURL"),
		DefaultCurrency:               conf.GetString("defaultCurrency"),
		RollbarToken:                  conf.GetString("rollbarToken"),
		SentryDSN:                     conf.GetString("sentryDSN"),
		SendgridAPIKey:                conf.GetString("sendgridAPIKey"),
		PasswordResetTimeoutDelta:     conf.GetDuration("passwordResetTimeoutDelta"),
		EmailVerificationTimeoutDelta: conf.GetDuration("emailVerificationTimeoutDelta"),
		Server: ServerConfig{
			Host:                      conf.GetString("server.host"),
			Address:                   conf.GetString("server.address"),
			DebugAddress:              conf.GetString("server.debugAddress"),
			ReadTimeout:               conf.GetDuration("server.readTimeout"),
			WriteTimeout:              conf.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:          conf.GetString("database.engine"),
			Host:            conf.GetString("database.host"),
			Port:            conf.GetString("database.port"),
			Name:            conf.GetString("database.name"),
			User:            conf.GetString("database.user"),
			Password:        conf.GetString("database.password"),
			AdminUser:       conf.GetString("database.adminUser"),
			AdminPassword:   conf.GetString("database.adminPassword"),
			DisableTLS:      conf.GetBool("database.disableTLS"),
			MaxOpenConns:    conf.GetInt("database.maxOpenConns"),
			MaxIdleConns:    conf.GetInt("database.maxIdleConns"),
			ConnMaxLifetime: conf.GetDuration("database.connMaxLifetime"),
			QueryTimeout:    conf.GetDuration("database.queryTimeout"),
		},
		Redis: RedisConfig{
			Address:  conf.GetString("redis.address"),
			Password: conf.GetString("redis.password"),
			DB:       conf.GetInt("redis.db"),
			QueueKey: conf.GetString("redis.queueKey"),
		},
		defaultFromEmail: conf.GetString("defaultFromEmail"),
	}
}

// NewTestConfig returns a Config suited for unit tests: no env lookups, in-memory storage.
func NewTestConfig() *Config {
	return &Config{
		Env:                           "TEST",
		Build:                         "test",
		AppName:                       "Darasa",
		TestMode:                      true,
		Storage:                       "memory",
		LogLevel:                      "error",
		SecretKey:                     "test-secret",
		FrontendBaseURL:               "http://localhost:3000",
		DefaultCurrency:               "USD",
		PasswordResetTimeoutDelta:     3 * 24 * time.Hour,
		EmailVerificationTimeoutDelta: 7 * 24 * time.Hour,
		Server: ServerConfig{
			Host:                      "localhost",
			JWTExpirationDelta:        7 * 24 * time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Redis:            RedisConfig{QueueKey: "darasa:test:jobs"},
		defaultFromEmail: "Darasa <noreply@localhost>",
	}
}
