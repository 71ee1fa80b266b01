// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"siggen-service/internal/config"
	"siggen-service/internal/model"
)

const defaultLogFile = "./logs/siggen-service.log"

// NewLogger builds the process logger from the logging section
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	sink, err := newLogSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %q: %w", cfg.Output, err)
	}

	core := zapcore.NewCore(newLogEncoder(cfg.Format), sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func newLogEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	if format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		return zapcore.NewConsoleEncoder(encoderConfig)
	}

	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return zapcore.NewJSONEncoder(encoderConfig)
}

// newLogSink resolves stdout, stderr or a rotated file
func newLogSink(cfg *config.LoggingConfig) (zapcore.WriteSyncer, error) {
	switch cfg.Output {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}

	filename := cfg.Output
	if filename == "" {
		filename = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, err
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}), nil
}

// ParseLevel maps a configured level name to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
	return parsed, nil
}

// DeviceLogger scopes log lines to one port of the signal generator
type DeviceLogger struct {
	*zap.Logger
	port string
}

// NewDeviceLogger creates a logger scoped to one port and firmware profile
func NewDeviceLogger(baseLogger *zap.Logger, port, profile string) *DeviceLogger {
	return &DeviceLogger{
		Logger: baseLogger.With(
			zap.String("component", "device"),
			zap.String("port", port),
			zap.String("profile", profile),
			zap.Bool("simulated", port == model.SimulatedPort),
		),
		port: port,
	}
}

// LogConnection records an open, close or reconnect of the port
func (dl *DeviceLogger) LogConnection(action string, err error) {
	if err != nil {
		dl.Warn("Port "+action+" failed", zap.Error(err))
		return
	}
	dl.Info("Port " + action)
}

// LogCommand records one framed command written to the port
func (dl *DeviceLogger) LogCommand(command string, took time.Duration, err error) {
	if err != nil {
		dl.Warn("Command not delivered",
			zap.String("command", command),
			zap.Duration("took", took),
			zap.Error(err),
		)
		return
	}
	dl.Debug("Command delivered",
		zap.String("command", command),
		zap.Duration("took", took),
	)
}

// SequenceLogger follows one run of a command script
type SequenceLogger struct {
	logger  *zap.Logger
	steps   int
	started time.Time
}

// NewSequenceLogger tags every line with the script name, version and a run id
func NewSequenceLogger(baseLogger *zap.Logger, name string, version, steps int) *SequenceLogger {
	return &SequenceLogger{
		logger: baseLogger.With(
			zap.String("component", "sequence"),
			zap.String("sequence", name),
			zap.Int("version", version),
			zap.String("run_id", uuid.NewString()),
		),
		steps:   steps,
		started: time.Now(),
	}
}

func (sl *SequenceLogger) Started() {
	sl.logger.Info("Sequence started", zap.Int("steps", sl.steps))
}

func (sl *SequenceLogger) StepWritten(step int, command string) {
	sl.logger.Debug("Sequence step written",
		zap.String("progress", fmt.Sprintf("%d/%d", step, sl.steps)),
		zap.String("command", command),
	)
}

// Halted logs the step that stopped the run; later steps are never sent
func (sl *SequenceLogger) Halted(step int, err error) {
	sl.logger.Error("Sequence halted",
		zap.Int("step", step),
		zap.Int("skipped", sl.steps-step),
		zap.Duration("elapsed", time.Since(sl.started)),
		zap.Error(err),
	)
}

func (sl *SequenceLogger) Completed() {
	sl.logger.Info("Sequence completed", zap.Duration("elapsed", time.Since(sl.started)))
}

// ServiceLogger tags lines with the owning component
type ServiceLogger struct {
	*zap.Logger
	serviceName string
}

// NewServiceLogger creates a component logger
func NewServiceLogger(baseLogger *zap.Logger, serviceName string) *ServiceLogger {
	return &ServiceLogger{
		Logger:      baseLogger.With(zap.String("service", serviceName)),
		serviceName: serviceName,
	}
}

// LogServiceStart logs the effective configuration at startup
func (sl *ServiceLogger) LogServiceStart(version string, cfg *config.Config) {
	sl.Info("Service starting",
		zap.String("version", version),
		zap.String("environment", cfg.App.Environment),
		zap.String("profile", cfg.Protocol.Profile),
		zap.Int("baud_rate", cfg.Device.BaudRate),
		zap.Bool("reconnect_on_start", cfg.Device.ReconnectOnStart),
		zap.String("address", cfg.GetServerAddr()),
	)
}

func (sl *ServiceLogger) LogServiceStop(reason string) {
	sl.Info("Service stopping", zap.String("reason", reason))
}

// LogAPIRequest logs a served request at a level chosen by its status
func (sl *ServiceLogger) LogAPIRequest(requestID, method, path, clientIP string, statusCode int, took time.Duration) {
	level := zapcore.DebugLevel
	switch {
	case statusCode >= 500:
		level = zapcore.ErrorLevel
	case statusCode >= 400:
		level = zapcore.WarnLevel
	case method != "GET":
		level = zapcore.InfoLevel
	}

	if ce := sl.Check(level, "API request"); ce != nil {
		ce.Write(
			zap.String("request_id", requestID),
			zap.String("method", method),
			zap.String("path", path),
			zap.String("client_ip", clientIP),
			zap.Int("status_code", statusCode),
			zap.Duration("took", took),
		)
	}
}

// LoggerWithRequestID adds request ID to logger
func LoggerWithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}

// LogError logs err with its taxonomy code next to the extra fields
func LogError(logger *zap.Logger, message string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("error_code", model.ErrorCode(err)),
		zap.Error(err),
	}, fields...)
	logger.Error(message, allFields...)
}

// CloseLogger flushes buffered log entries
func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
