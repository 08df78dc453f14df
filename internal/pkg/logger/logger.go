package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Level   string
	Output  io.Writer
	NoColor bool
}

// Logger prints console lines tagged [INFO], [WARN], [ERRO] on top of zap.
type Logger struct {
	*zap.SugaredLogger
	out     io.Writer
	success *color.Color
}

func NewLogger(opts Options) (*Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	tags := levelTags(opts.NoColor)
	encCfg := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		NameKey:          "logger",
		ConsoleSeparator: " ",
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			tag, ok := tags[l]
			if !ok {
				tag = tags[zapcore.ErrorLevel]
			}
			enc.AppendString(tag)
		},
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(out)), level)

	success := color.New(color.FgGreen, color.Bold)
	if opts.NoColor {
		success.DisableColor()
	}

	return &Logger{
		SugaredLogger: zap.New(core).Sugar(),
		out:           out,
		success:       success,
	}, nil
}

// NewNop discards everything; used where no console is attached.
func NewNop() *Logger {
	return &Logger{
		SugaredLogger: zap.NewNop().Sugar(),
		out:           io.Discard,
		success:       color.New(),
	}
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}
}

func levelTags(noColor bool) map[zapcore.Level]string {
	paint := func(tag string, attrs ...color.Attribute) string {
		c := color.New(attrs...)
		if noColor {
			c.DisableColor()
		}
		return c.Sprint(tag)
	}
	return map[zapcore.Level]string{
		zapcore.DebugLevel: paint("[DEBG]", color.FgHiBlack),
		zapcore.InfoLevel:  paint("[INFO]", color.FgCyan),
		zapcore.WarnLevel:  paint("[WARN]", color.FgYellow),
		zapcore.ErrorLevel: paint("[ERRO]", color.FgRed),
	}
}

// Success prints the final [SUCCESS] line of a deployment.
func (l *Logger) Success(msg string) {
	fmt.Fprintln(l.out, l.success.Sprint("[SUCCESS]"), msg)
}

func (l *Logger) SSHConnectionAttempt(target, user string) {
	l.Infow(fmt.Sprintf("connecting to %s as %s", target, user), "type", "ssh_connection")
}

func (l *Logger) DeploymentStep(step, stack string) {
	l.Debugw("executing deployment step", "type", "deployment", "step", step, "stack", stack)
}

func (l *Logger) DeploymentError(step string, err error) {
	l.Debugw("deployment step failed", "type", "deployment", "step", step, "error", err.Error())
}

func (l *Logger) DeploymentSuccess(step string) {
	l.Debugw("deployment step succeeded", "type", "deployment", "step", step)
}
