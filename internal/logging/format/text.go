package format

import (
	"strconv"
	"strings"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
)

// TextFormatter renders "<time> [<LEVEL>] <category>[<event id>]: <message> | <error>".
type TextFormatter struct {
	cfg Config
}

func NewTextFormatter(cfg Config) *TextFormatter {
	return &TextFormatter{cfg: cfg.withDefaults()}
}

func (f *TextFormatter) Format(category string, level logging.Level, eventID logging.EventID, state any, err error) string {
	msg := Message(state)
	if strings.TrimSpace(msg) == "" && err == nil {
		return ""
	}

	buf := getBuffer()
	defer putBuffer(buf)

	buf.Write(f.cfg.Now().AppendFormat(buf.AvailableBuffer(), f.cfg.TimestampFormat))
	buf.WriteString(" [")
	buf.WriteString(level.String())
	buf.WriteString("] ")
	buf.WriteString(category)
	buf.WriteByte('[')
	buf.WriteString(strconv.Itoa(eventID.ID))
	buf.WriteString("]: ")
	buf.WriteString(msg)

	if err != nil {
		buf.WriteString(" | ")
		buf.WriteString(err.Error())
	}

	return buf.String()
}
