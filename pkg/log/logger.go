package log

import (
	"fmt"
	"log"
	"os"
	"path"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

var Loger *Logger

const (
	PATH = "/tmp/streamspy"
)

type Logger struct {
	name   string
	level  logrus.Level
	logger *logrus.Logger
	file   *os.File
}

func (l *Logger) SetLevel(level logrus.Level) {
	l.level = level
	l.logger.SetLevel(level)
}

func LevelTransform(level string) logrus.Level {
	switch level {
	case "FATAL", "fatal":
		return logrus.FatalLevel
	case "ERROR", "error":
		return logrus.ErrorLevel
	case "WARN", "warn":
		return logrus.WarnLevel
	case "INFO", "info":
		return logrus.InfoLevel
	case "DEBUG", "debug":
		return logrus.DebugLevel
	case "TRACE", "trace":
		return logrus.TraceLevel
	}
	return logrus.InfoLevel
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func NewLogger(logPath string, level logrus.Level) *Logger {
	if logPath == "" {
		logPath = PATH
	}
	if !exists(logPath) {
		err := os.MkdirAll(logPath, 0755)
		if err != nil {
			log.Fatalf("mkdir %s failed.", logPath)
		}
	}

	fileName := time.Now().Format("20060102_15:04:05") + ".log"
	file, err := os.OpenFile(logPath+"/"+fileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("New logger failed:%v", err))
	}

	return &Logger{
		name:   fileName,
		level:  level,
		logger: logrus.New(),
		file:   file,
	}
}

func LogInit(logPath string, level logrus.Level) {
	Loger = NewLogger(logPath, level)
	Loger.logger.SetOutput(Loger.file)
	Loger.logger.SetLevel(Loger.level)
	// output file name and function name
	Loger.logger.SetReportCaller(true)
	Loger.logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",

		CallerPrettyfier: func(frame *runtime.Frame) (function string, file string) {
			// handle file name
			fileName := path.Base(frame.File)
			return frame.Function, fileName
		},
	})
}

func (l *Logger) Info(format string, a ...any) {
	l.logger.Info(fmt.Sprintf(format, a...))
}

func (l *Logger) Error(format string, a ...any) {
	l.logger.Error(fmt.Sprintf(format, a...))
}

func (l *Logger) Warn(format string, a ...any) {
	l.logger.Warn(fmt.Sprintf(format, a...))
}

func (l *Logger) Debug(format string, a ...any) {
	l.logger.Debug(fmt.Sprintf(format, a...))
}
