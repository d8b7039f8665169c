package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// levelColors maps zerolog level values to colorstring markers. Levels not
// listed here (info included) render green.
var levelColors = map[string]string{
	zerolog.LevelFatalValue: "[red]",
	zerolog.LevelErrorValue: "[red]",
	zerolog.LevelWarnValue:  "[yellow]",
	zerolog.LevelDebugValue: "[blue]",
	zerolog.LevelTraceValue: "[blue]",
}

// ConsoleWriter renders the zerolog JSON stream as colored lines on
// stderr. Shell commands echoed by the action runner get a "$ " marker,
// subdirectory diagnostics keep their "<path>: <message>" form, and
// wrapped error chains are indented below the message.
type ConsoleWriter struct {
	out  io.Writer
	lock sync.Mutex
}

func NewConsoleWriter() *ConsoleWriter {
	return &ConsoleWriter{out: os.Stderr}
}

func (w *ConsoleWriter) Write(p []byte) (int, error) {
	var evt map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	if err := dec.Decode(&evt); err != nil {
		return 0, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	level, _ := evt[zerolog.LevelFieldName].(string)
	color, ok := levelColors[level]
	if !ok {
		color = "[green]"
	}

	msg, _ := evt[zerolog.MessageFieldName].(string)

	line := strings.Builder{}
	line.WriteString(color)

	if action, ok := evt["action"].(string); ok {
		line.WriteString(action)
		line.WriteString(": ")
	}

	if isCmd, ok := evt["command"].(bool); ok && isCmd {
		line.WriteString("$ ")
	}

	if level == zerolog.LevelErrorValue || level == zerolog.LevelFatalValue {
		line.WriteString("Error: ")
	}

	// subdirectory diagnostics carry their path as a field; make sure the
	// rendered line has the "<path>: <message>" form exactly once
	if path, ok := evt["path"].(string); ok && !strings.HasPrefix(msg, path+": ") {
		line.WriteString(path)
		line.WriteString(": ")
	}

	line.WriteString(msg)

	if details, ok := evt[zerolog.ErrorFieldName].(string); ok {
		for _, part := range strings.Split(details, "\n") {
			line.WriteString("\n    ")
			line.WriteString(part)
		}
	}

	if os.Getenv("PROVTOOL_DEBUG") != "" {
		names := make([]string, 0, len(evt))
		for name := range evt {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			line.WriteString(fmt.Sprintf("\n  %s: %+v", name, evt[name]))
		}
	}

	line.WriteString("[reset]\n")

	w.lock.Lock()
	defer w.lock.Unlock()

	_, err := colorstring.Fprint(w.out, line.String())
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func init() {
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, os.Getenv("PROVTOOL_DEBUG") != "")
	}
}
