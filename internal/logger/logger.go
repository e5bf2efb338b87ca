package logger

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	once   sync.Once
	logger = zap.NewNop()

	// Log é o logger açucarado usado pelo resto do módulo. Até Init ser chamado
	// ele descarta tudo, o que mantém os testes silenciosos.
	Log = logger.Sugar()
)

var (
	AppName = "bbscan"
	Env     = "production"
)

// Options controla onde e com que nível o logger escreve.
type Options struct {
	Level   string // debug, info, warn, error
	LogPath string // arquivo JSON rotacionado; vazio desabilita
	Command string // subcomando em execução, anexado a toda linha
}

func Init(opts Options) error {
	var initErr error
	once.Do(func() {
		level := zapcore.InfoLevel
		if opts.Level != "" {
			if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
				initErr = err
				return
			}
		}

		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderCfg.CallerKey = "caller"
		encoderCfg.LevelKey = "level"
		encoderCfg.MessageKey = "message"

		consoleCfg := encoderCfg
		consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		if isatty.IsTerminal(os.Stdout.Fd()) {
			consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		cores := []zapcore.Core{
			zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(os.Stdout), level),
		}

		if opts.LogPath != "" {
			if err := os.MkdirAll(filepath.Dir(opts.LogPath), 0o755); err != nil {
				initErr = err
				return
			}
			fileWriter := zapcore.AddSync(&lumberjack.Logger{
				Filename:   opts.LogPath,
				MaxSize:    50,
				MaxBackups: 7,
				MaxAge:     30,
				Compress:   true,
			})
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), fileWriter, level))
		}

		fields := []zap.Field{
			zap.String("app", AppName),
			zap.String("env", Env),
		}
		if opts.Command != "" {
			fields = append(fields, zap.String("command", opts.Command))
		}

		logger = zap.New(zapcore.NewTee(cores...),
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
			zap.Fields(fields...),
		)
		Log = logger.Sugar()
	})
	return initErr
}

func GetLogger() *zap.Logger {
	return logger
}

// Sync descarrega buffers; erros de sync em stdout são ignorados.
func Sync() {
	_ = logger.Sync()
}

func Trace(fn string, start time.Time) {
	Log.Debugf("%s executado em %d ms", fn, time.Since(start).Milliseconds())
}

func TraceAuto() func() {
	start := time.Now()
	pc, _, _, ok := runtime.Caller(1)
	funcName := "unknown"
	if ok {
		funcName = trimPackagePath(runtime.FuncForPC(pc).Name())
	}
	Log.Debugw("Início da função", "function", funcName)
	return func() {
		Log.Debugw("Fim da função", "function", funcName, "duration", time.Since(start).String())
	}
}

func trimPackagePath(fullName string) string {
	if idx := strings.LastIndex(fullName, "/"); idx != -1 {
		fullName = fullName[idx+1:]
	}
	if idx := strings.Index(fullName, "."); idx != -1 {
		return fullName[idx+1:]
	}
	return fullName
}
