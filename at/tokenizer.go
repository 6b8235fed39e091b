package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// It splits the input by CRLF line endings. A lone LF also terminates a
// line, since the SARA-N2 boot banner is not always CR/LF framed.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[0:i], []byte{'\r'}), nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

var urcPrefixes = []string{
	UrcConnection,
	UrcRegistration,
	UrcPowerSave,
	UrcCoAPData,
}

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	switch line {
	case OK, ERROR:
		return TypeFinal
	case UrcReady, UrcRebooting:
		return TypeURC
	}

	if strings.HasPrefix(line, CmeError) {
		return TypeFinal
	}
	for _, p := range urcPrefixes {
		if strings.HasPrefix(line, p) {
			return TypeURC
		}
	}
	return TypeData
}

// CommandID returns the response prefix a command's information lines
// carry, e.g. "+CSCON" for "AT+CSCON?". Commands without a '+' extension
// return an empty string.
func CommandID(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	i := strings.IndexByte(cmd, '+')
	if i < 0 {
		return ""
	}
	cmd = cmd[i:]
	if j := strings.IndexAny(cmd, "=?"); j >= 0 {
		cmd = cmd[:j]
	}
	return cmd
}

// Fields returns the comma separated values following prefix in line,
// with surrounding spaces and quotes removed. Commas inside quotes do not
// split a field. ok is false when line does not start with prefix.
func Fields(line, prefix string) (fields []string, ok bool) {
	rest, ok := strings.CutPrefix(line, prefix)
	if !ok {
		return nil, false
	}
	rest = strings.TrimPrefix(strings.TrimSpace(rest), ":")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return []string{}, true
	}

	var (
		cur    strings.Builder
		quoted bool
	)
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		switch {
		case c == '"':
			quoted = !quoted
		case c == ',' && !quoted:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	fields = append(fields, strings.TrimSpace(cur.String()))
	return fields, true
}
