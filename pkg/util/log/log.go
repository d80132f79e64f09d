// Copyright 2021 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package log provides structured, context-tagged logging. Messages are
// prefixed with the log tags carried by the context, so a line logged deep
// inside an operator identifies the scan or plan it belongs to. Message
// arguments are rendered redactable: values are wrapped in redaction markers
// unless their type implements redact.SafeValue.
package log

import (
	"bytes"
	"context"
	stdlog "log"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
)

var logger = stdlog.New(os.Stderr, "", stdlog.LstdFlags|stdlog.Lshortfile)

var verbosity int32

// SetVerbosity sets the level below which VEventf calls are emitted.
func SetVerbosity(v int) {
	atomic.StoreInt32(&verbosity, int32(v))
}

// V reports whether verbose events at the given level are being emitted.
func V(level int) bool {
	return int32(level) <= atomic.LoadInt32(&verbosity)
}

// Warningf logs a warning unconditionally.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, "warning: "+format, args)
}

// VEventf logs a message when the configured verbosity is at least level.
func VEventf(ctx context.Context, level int, format string, args ...interface{}) {
	if V(level) {
		output(ctx, format, args)
	}
}

func output(ctx context.Context, format string, args []interface{}) {
	_ = logger.Output(3, makeMessage(ctx, format, args))
}

// makeMessage creates a structured log entry. The message body keeps its
// redaction markers, so log files stay redactable after the fact.
func makeMessage(ctx context.Context, format string, args []interface{}) string {
	var buf bytes.Buffer
	if tags := logtags.FromContext(ctx); tags != nil {
		buf.WriteString("[")
		buf.WriteString(tags.String())
		buf.WriteString("] ")
	}
	if len(format) == 0 {
		buf.WriteString(string(redact.Sprint(args...)))
	} else {
		buf.WriteString(string(redact.Sprintf(format, args...)))
	}
	return buf.String()
}
