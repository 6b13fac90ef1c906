// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package log provides the leveled logger used across the partition and
// mount engines. The engine never writes to stdout/stderr directly
// — info/warn text that also flows
// through an Ask callback is mirrored here for diagnosis.
package log

import (
	"fmt"
	"log"
	"os"
)

const (
	// LevelError specifies the log level as: ERROR
	LevelError = 1

	// LevelWarning specifies the log level as: WARNING
	LevelWarning = 2

	// LevelInfo specifies the log level as: INFO
	LevelInfo = 3

	// LevelDebug specifies the log level as: DEBUG
	LevelDebug = 4

	// LevelVerbose is the same as Debug, but without repeat-line filtering.
	LevelVerbose = 5
)

var (
	level      = LevelInfo
	levelMap   = map[int]string{}
	filehandle *os.File

	lineLast  string
	lineCount int
)

func init() {
	levelMap[LevelError] = "LevelError"
	levelMap[LevelWarning] = "LevelWarning"
	levelMap[LevelInfo] = "LevelInfo"
	levelMap[LevelDebug] = "LevelDebug"
	levelMap[LevelVerbose] = "LevelVerbose"
}

// SetLevel sets the default log level to l, clamping to the valid range.
func SetLevel(l int) {
	if l < LevelError {
		level = LevelError
		logTag("WRN", "Log Level '%d' too low, forcing to %s (%d)", l, levelMap[level], level)
	} else if l > LevelVerbose {
		level = LevelVerbose
		logTag("WRN", "Log Level '%d' too high, forcing to %s (%d)", l, levelMap[level], level)
	} else {
		level = l
		Debug("Log Level set to %s (%d)", levelMap[level], l)
	}
}

// SetOutputFile redirects log output to filename instead of stderr.
func SetOutputFile(filename string) (*os.File, error) {
	var err error
	filehandle, err = os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	log.SetOutput(filehandle)
	return filehandle, nil
}

// LevelStr converts level to its text equivalent.
func LevelStr(level int) (string, error) {
	if s, ok := levelMap[level]; ok {
		return s, nil
	}
	return "", fmt.Errorf("invalid log level: %d", level)
}

func logTag(tag string, format string, a ...interface{}) {
	f := fmt.Sprintf("[%s] %s\n", tag, format)
	output := fmt.Sprintf(f, a...)

	if level >= LevelVerbose {
		log.Print(output)
		return
	}

	if output != lineLast {
		if lineCount > 0 {
			plural := ""
			if lineCount > 1 {
				plural = "s"
			}
			log.Printf("[%s] [Previous line repeated %d time%s]\n", tag, lineCount, plural)
		}

		log.Print(output)

		lineLast = output
		lineCount = 0
	} else {
		lineCount++
	}
}

// Debug prints a debug log entry with DBG tag.
func Debug(format string, a ...interface{}) {
	if level < LevelDebug {
		return
	}
	logTag("DBG", format, a...)
}

// Error prints an error log entry with ERR tag.
func Error(format string, a ...interface{}) {
	logTag("ERR", format, a...)
}

// ErrorErr prints an error log entry from an error value, tag ERR.
func ErrorErr(err error) {
	logTag("ERR", "%s", err.Error())
}

// Info prints an info log entry with INF tag.
func Info(format string, a ...interface{}) {
	if level < LevelInfo {
		return
	}
	logTag("INF", format, a...)
}

// Warning prints a warning log entry with WRN tag.
func Warning(format string, a ...interface{}) {
	if level < LevelWarning {
		return
	}
	logTag("WRN", format, a...)
}
