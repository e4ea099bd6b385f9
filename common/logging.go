// Package common provides the structured logging infrastructure shared by the
// worker SDK: an intelligent stdout/stderr output splitter and a logrus
// formatter matching the SDK's five-field log line (timestamp, instance id,
// queue, target, level, message).
package common

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes error-level log lines to stderr and everything else
// to stdout, so containerized deployments can treat the two streams
// differently without parsing the formatted message.
type OutputSplitter struct{}

// Write implements io.Writer, inspecting the formatted line for the marker
// each formatter produces for error-level entries: "level=error" (logrus
// text), " - ERROR - " (WorkerFormatter) and "level":"error" (logrus JSON).
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) ||
		bytes.Contains(p, []byte(" - ERROR - ")) ||
		bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-wide logrus instance every SDK component logs
// through unless a caller builds its own with NewLogger.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
	Logger.SetFormatter(&WorkerFormatter{})
}

// WorkerFormatter renders log entries as:
//
//	timestamp - instance_id - queue - target - LEVEL - message key=value ...
//
// the line shape the worker SDK has always produced, so log-scraping
// tooling built against it keeps working regardless of which language
// implements the worker.
type WorkerFormatter struct {
	// TimestampFormat overrides the default millisecond-precision RFC3339.
	TimestampFormat string
}

func (f *WorkerFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timeFormat := f.TimestampFormat
	if timeFormat == "" {
		timeFormat = "2006-01-02T15:04:05.000Z07:00"
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s - %s - %s - %s - %s - %s",
		entry.Time.Format(timeFormat),
		stringField(entry.Data, "instance_id"),
		stringField(entry.Data, "queue"),
		stringField(entry.Data, "target"),
		strings.ToUpper(entry.Level.String()),
		entry.Message,
	)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == "instance_id" || k == "queue" || k == "target" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')

	return b.Bytes(), nil
}

func stringField(data logrus.Fields, key string) string {
	if v, ok := data[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return "-"
}
