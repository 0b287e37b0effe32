// Package logsvc implements core.Logger on zap, forwarding errors to rollbar and sentry.
package logsvc

import (
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/darasa/core"
)

type Logger struct {
	base    *zap.Logger
	sugar   *zap.SugaredLogger
	level   zap.AtomicLevel
	rollbar bool
	sentry  bool
}

var _ core.Logger = (*Logger)(nil)

// New builds a zap logger (production encoding in PROD) and configures the error reporters
// whose credentials are set.
func New(conf *core.Config) (*Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(strings.ToLower(conf.LogLevel))); err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	var cfg zap.Config
	if conf.Env == "PROD" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build(zap.AddCallerSkip(1), zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return nil, err
	}
	l := &Logger{base: base, sugar: base.Sugar(), level: lvl}

	if conf.RollbarToken != "" && !conf.TestMode {
		rollbar.SetToken(conf.RollbarToken)
		rollbar.SetEnvironment(conf.Env)
		rollbar.SetServerHost(conf.Server.Host)
		rollbar.SetCodeVersion(conf.Build)
		rollbar.SetStackTracer(rollbarerrors.StackTracer)
		l.rollbar = true
	}
	if conf.SentryDSN != "" && !conf.TestMode {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         conf.SentryDSN,
			Environment: conf.Env,
			Release:     conf.Build,
		})
		if err != nil {
			l.sugar.Warnw("sentry init failed", zap.Error(err))
		} else {
			l.sentry = true
		}
	}
	return l, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	base := zap.NewNop()
	return &Logger{base: base, sugar: base.Sugar(), level: zap.NewAtomicLevel()}
}

// SetLevel changes the level at runtime.
func (l *Logger) SetLevel(level string) error {
	return l.level.UnmarshalText([]byte(strings.ToLower(level)))
}

func (l *Logger) Zap() *zap.Logger { return l.base }

// Close flushes buffered entries and pending reports.
func (l *Logger) Close() {
	_ = l.base.Sync()
	if l.rollbar {
		rollbar.Wait()
	}
	if l.sentry {
		sentry.Flush(2 * time.Second)
	}
}

type entry struct {
	fields []interface{}
	errs   []error
	extras map[string]interface{}
	person *core.Person
}

// expected args: error, map[string]interface{}, core.Person (only the first one is kept)
func parse(args []interface{}) entry {
	var e entry
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
		case error:
			e.errs = append(e.errs, v)
			e.fields = append(e.fields, zap.Error(v))
		case map[string]interface{}:
			if e.extras == nil {
				e.extras = make(map[string]interface{}, len(v))
			}
			for k, val := range v {
				e.extras[k] = val
				e.fields = append(e.fields, zap.Any(k, val))
			}
		case core.Person:
			if e.person == nil {
				p := v
				e.person = &p
				e.fields = append(e.fields, zap.String("user_id", v.ID), zap.String("tenant_id", v.TenantID))
			}
		case *core.Person:
			if e.person == nil && v != nil {
				e.person = v
				e.fields = append(e.fields, zap.String("user_id", v.ID), zap.String("tenant_id", v.TenantID))
			}
		default:
			e.fields = append(e.fields, zap.Any("arg", v))
		}
	}
	return e
}

func (l *Logger) report(level string, msg string, e entry) {
	if l.rollbar {
		if e.person != nil {
			rollbar.SetPerson(e.person.ID, e.person.ID, e.person.Email)
		} else {
			rollbar.ClearPerson()
		}
		args := []interface{}{msg}
		for _, err := range e.errs {
			args = append(args, err)
		}
		if e.extras != nil {
			args = append(args, e.extras)
		}
		rollbar.Log(level, args...)
	}
	if l.sentry {
		sentry.WithScope(func(scope *sentry.Scope) {
			if e.person != nil {
				scope.SetUser(sentry.User{ID: e.person.ID, Email: e.person.Email})
				scope.SetTag("tenant_id", e.person.TenantID)
			}
			for k, v := range e.extras {
				scope.SetExtra(k, v)
			}
			if level == rollbar.CRIT {
				scope.SetLevel(sentry.LevelFatal)
			}
			if len(e.errs) == 0 {
				sentry.CaptureMessage(msg)
				return
			}
			for _, err := range e.errs {
				sentry.CaptureException(err)
			}
		})
	}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.sugar.Debugw(msg, parse(args).fields...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.sugar.Infow(msg, parse(args).fields...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.sugar.Warnw(msg, parse(args).fields...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	e := parse(args)
	l.sugar.Errorw(msg, e.fields...)
	l.report(rollbar.ERR, msg, e)
}

func (l *Logger) Fatal(msg string, args ...interface{}) {
	e := parse(args)
	l.report(rollbar.CRIT, msg, e)
	l.Close()
	l.sugar.Fatalw(msg, e.fields...)
}
