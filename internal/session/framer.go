package session

import (
	"bytes"
	"strings"
)

// Framer cuts buffered stream bytes into records.  It returns every
// complete record and the unconsumed tail, which the channel keeps and
// prepends to the next chunk.
type Framer interface {
	Frame(buf []byte) (records []string, rest []byte)
}

// LineFramer splits on '\n'.  Records are trimmed and empty lines are
// dropped; a trailing line without '\n' stays buffered.
type LineFramer struct{}

func (LineFramer) Frame(buf []byte) ([]string, []byte) {
	i := bytes.LastIndexByte(buf, '\n')
	if i < 0 {
		return nil, buf
	}
	var records []string
	for _, line := range strings.Split(string(buf[:i]), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			records = append(records, line)
		}
	}
	return records, buf[i+1:]
}

// NetconfDelimiter ends every NETCONF 1.0 message.
const NetconfDelimiter = "]]>]]>"

// DelimiterFramer splits on an end-of-message marker.  Each record is
// one trimmed message body.
type DelimiterFramer struct {
	Delimiter string
}

func (f DelimiterFramer) Frame(buf []byte) ([]string, []byte) {
	delim := []byte(f.Delimiter)
	var records []string
	for {
		i := bytes.Index(buf, delim)
		if i < 0 {
			return records, buf
		}
		if msg := strings.TrimSpace(string(buf[:i])); msg != "" {
			records = append(records, msg)
		}
		buf = buf[i+len(delim):]
	}
}
