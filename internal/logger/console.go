package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// consoleSink writes entries to stderr, colored in text mode.
type consoleSink struct {
	mu     sync.Mutex
	config *Config
}

var levelColors = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed),
}

func newConsoleSink(config *Config) *consoleSink {
	return &consoleSink{config: config}
}

func (c *consoleSink) write(entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.Format == FormatJSON {
		data, err := json.Marshal(entry)
		if err != nil {
			return
		}
		fmt.Fprintln(os.Stderr, string(data))
		return
	}

	tag := strings.ToUpper(string(entry.Level))
	if c.config.Console.Color {
		if lc, ok := levelColors[entry.Level]; ok {
			tag = lc.Sprint(tag)
		}
	}

	var b strings.Builder
	b.WriteString(entry.Timestamp)
	b.WriteByte(' ')
	b.WriteString(tag)
	if entry.Component != "" {
		b.WriteString(" [")
		b.WriteString(string(entry.Component))
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
		}
	}

	fmt.Fprintln(os.Stderr, b.String())
}
