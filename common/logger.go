// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"fmt"
	"io"
	"log"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RingID identifies one TraceBuffer instance for the lifetime of the
// process, so its log lines and clone stats can be correlated.
type RingID uuid.UUID

func NewRingID() RingID { return RingID(uuid.New()) }

func (r RingID) String() string { return uuid.UUID(r).String() }

type ILogger interface {
	ShouldLog(level LogLevel) bool
	Log(level LogLevel, msg string)
	Panic(err error)
}

type ILoggerCloser interface {
	ILogger
	CloseLog()
}

type ILoggerResetable interface {
	OpenLog()
	MinimumLogLevel() LogLevel
	ILoggerCloser
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type LogLevelOverrideLogger struct {
	ILoggerResetable
	MinimumLevelToLog LogLevel
}

func (l LogLevelOverrideLogger) MinimumLogLevel() LogLevel {
	return l.MinimumLevelToLog
}

func (l LogLevelOverrideLogger) ShouldLog(level LogLevel) bool {
	if level == LogNone {
		return false
	}
	return level <= l.MinimumLevelToLog
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

const maxLogSize = 500 * 1024 * 1024

// ringLogger is the teacher's jobLogger, generalized from "one log file per
// transfer job" to "one log file per TraceBuffer instance". The core engine
// itself never holds a reference to one of these (it is a synchronous
// library, per spec §5); it exists for whatever embeds a TraceBuffer to
// report stalls, ABI violations, and fatal invariant breaks consistently.
type ringLogger struct {
	ringID            RingID
	minimumLevelToLog LogLevel       // The maximum caller-desired log level for this ring
	file              io.WriteCloser // The ring's log file
	logFileFolder     string         // The log file's parent folder, needed for opening the file at the right place
	logger            *log.Logger    // The ring's logger
	logFileNameSuffix string         // Used to allow more than 1 log per ring, e.g. reader-side vs writer-side logs
}

func NewRingLogger(ringID RingID, minimumLevelToLog LogLevel, logFileFolder string, logFileNameSuffix string) ILoggerResetable {
	return &ringLogger{
		ringID:            ringID,
		minimumLevelToLog: minimumLevelToLog,
		logFileFolder:     logFileFolder,
		logFileNameSuffix: logFileNameSuffix,
	}
}

func (rl *ringLogger) OpenLog() {
	if rl.minimumLevelToLog == LogNone {
		return
	}

	file, err := NewRotatingWriter(path.Join(rl.logFileFolder, rl.ringID.String()+rl.logFileNameSuffix+".log"), maxLogSize)
	PanicIfErr(err)

	rl.file = file

	flags := log.LstdFlags | log.LUTC
	utcMessage := fmt.Sprintf("Log times are in UTC. Local time is %s", time.Now().Format("2 Jan 2006 15:04:05"))

	rl.logger = log.New(rl.file, "", flags)
	rl.logger.Println("OS-Environment ", runtime.GOOS)
	rl.logger.Println("OS-Architecture ", runtime.GOARCH)
	rl.logger.Println(utcMessage)
}

func (rl *ringLogger) MinimumLogLevel() LogLevel {
	return rl.minimumLevelToLog
}

func (rl *ringLogger) ShouldLog(level LogLevel) bool {
	if level == LogNone {
		return false
	}
	return level <= rl.minimumLevelToLog
}

func (rl *ringLogger) CloseLog() {
	if rl.minimumLevelToLog == LogNone {
		return
	}

	rl.logger.Println("Closing Log")
	_ = rl.file.Close() // If it was already closed, that's alright. We wanted to close it, anyway.
}

func (rl ringLogger) Log(loglevel LogLevel, msg string) {
	// Go defaults to \n for line endings, so if the platform has a different line ending,
	// we should replace them to ensure readability on the given platform.
	if lineEnding != "\n" {
		msg = strings.Replace(msg, "\n", lineEnding, -1)
	}
	if rl.ShouldLog(loglevel) {
		rl.logger.Println(msg)
	}
}

func (rl ringLogger) Panic(err error) {
	rl.logger.Println(err) // Log first so the failure is on record, then panic
	panic(err)
	// We should never reach this line of code!
}

type causer interface {
	Cause() error
}

// Cause walks all the preceding errors and return the originating error.
func Cause(err error) error {
	for err != nil {
		cause, ok := err.(causer)
		if !ok {
			break
		}
		err = cause.Cause()
	}
	return err
}
