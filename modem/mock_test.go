package modem_test

import (
	"strings"
	"sync"
)

// ReplyScript maps command lines to canned modem output. Commands without
// a scripted reply get no answer at all.
type ReplyScript struct {
	mu      sync.Mutex
	replies map[string][]string
}

func NewReplyScript() *ReplyScript {
	return &ReplyScript{replies: map[string][]string{}}
}

// On queues reply for the next transmission of cmd. Several replies for the
// same command are consumed in order; the last one repeats.
func (s *ReplyScript) On(cmd string, reply ...string) *ReplyScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[cmd] = append(s.replies[cmd], "\r\n"+strings.Join(reply, "\r\n")+"\r\n")
	return s
}

func (s *ReplyScript) Init() *ReplyScript {
	return s.
		On("AT", "OK").
		On("ATE0", "OK").
		On("AT+CMEE=1", "OK")
}

func (s *ReplyScript) SimReady() *ReplyScript {
	return s.On("AT+CPIN?", "+CPIN: READY", "OK")
}

func (s *ReplyScript) SimPinRequired() *ReplyScript {
	return s.On("AT+CPIN?", "+CPIN: SIM PIN", "OK")
}

// Responder adapts the script to TestTransport.Respond.
func (s *ReplyScript) Responder() func(string) string {
	return func(cmd string) string {
		s.mu.Lock()
		defer s.mu.Unlock()
		queue := s.replies[cmd]
		if len(queue) == 0 {
			return ""
		}
		out := queue[0]
		if len(queue) > 1 {
			s.replies[cmd] = queue[1:]
		}
		return out
	}
}
