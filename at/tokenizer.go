package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// It splits the input by CRLF line endings and also recognizes the
// input prompt ("> ") used by commands that take a second payload.
//
// Channels are run with echo disabled (ATE0); an echoed command would be
// returned as an ordinary line.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if bytes.HasPrefix(data, []byte(Prompt)) {
		return len(Prompt), data[0:len(Prompt)], nil
	}

	if i := bytes.Index(data, []byte(CRLF)); i >= 0 {
		return i + len(CRLF), data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of a single line of modem output without
// any knowledge of registered unsolicited prefixes. Channels refine the
// TypeData case with their Silo tables.
func Classify(line string) ResponseType {
	if line == Prompt {
		return TypePrompt
	}
	if _, ok := ParseResult(line); ok {
		return TypeFinal
	}
	if line == "RING" || strings.HasPrefix(line, "+CRING:") {
		return TypeURC
	}
	return TypeData
}

// ReplyPrefixes derives the information-response prefixes a command line
// may produce. "AT+CGPADDR=1" yields "+CGPADDR:", and a concatenated
// "AT+CGACT=1,1;+XDATACHANNEL=1" yields both "+CGACT:" and "+XDATACHANNEL:".
// Commands without an extended name (ATD, ATE0) yield nothing.
func ReplyPrefixes(cmd string) []string {
	cmd = strings.TrimSpace(cmd)
	if len(cmd) < 2 || !strings.EqualFold(cmd[:2], "AT") {
		return nil
	}

	var prefixes []string
	for _, part := range strings.Split(cmd[2:], ";") {
		if !strings.HasPrefix(part, "+") && !strings.HasPrefix(part, "!") {
			continue
		}
		end := strings.IndexAny(part, "=?")
		if end < 0 {
			end = len(part)
		}
		if end <= 1 {
			continue
		}
		prefixes = append(prefixes, strings.ToUpper(part[:end])+":")
	}
	return prefixes
}
