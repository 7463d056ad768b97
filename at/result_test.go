package at_test

import (
	"errors"
	"testing"

	"i4.energy/across/modemctl/at"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    at.Result
		final   bool
		success bool
	}{
		{name: "OK", line: "OK", want: at.Result{Code: at.ResultOK}, final: true, success: true},
		{name: "Prompt", line: "> ", want: at.Result{Code: at.ResultPrompt}, final: true, success: true},
		{name: "ERROR", line: "ERROR", want: at.Result{Code: at.ResultError}, final: true},
		{name: "CME numeric", line: "+CME ERROR: 148", want: at.Result{Code: at.ResultCME, Cause: 148}, final: true},
		{name: "CMS numeric", line: "+CMS ERROR: 500", want: at.Result{Code: at.ResultCMS, Cause: 500}, final: true},
		{
			name:  "CME verbose is unrecognized",
			line:  "+CME ERROR: SIM not inserted",
			want:  at.Result{Code: at.ResultCME, Detail: "SIM not inserted", Unrecognized: true},
			final: true,
		},
		{name: "CONNECT", line: "CONNECT", want: at.Result{Code: at.ResultConnect}, final: true, success: true},
		{name: "CONNECT with rate", line: "CONNECT 115200", want: at.Result{Code: at.ResultConnect, Detail: "115200"}, final: true, success: true},
		{name: "NO CARRIER", line: "NO CARRIER", want: at.Result{Code: at.ResultNoCarrier}, final: true},
		{name: "ABORTED", line: "ABORTED", want: at.Result{Code: at.ResultAborted}, final: true},
		{name: "BUSY", line: "BUSY", want: at.Result{Code: at.ResultBusy}, final: true},
		{name: "Data line", line: "+CGPADDR: 1,\"10.0.0.5\"", final: false},
		{name: "CONNECTED is not CONNECT", line: "CONNECTED", final: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := at.ParseResult(tt.line)
			if ok != tt.final {
				t.Fatalf("ParseResult(%q) final = %v, want %v", tt.line, ok, tt.final)
			}
			if !ok {
				return
			}
			if got != tt.want {
				t.Errorf("ParseResult(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
			if got.Success() != tt.success {
				t.Errorf("Success() = %v, want %v", got.Success(), tt.success)
			}
			if (got.Err() == nil) != tt.success {
				t.Errorf("Err() = %v, success %v", got.Err(), tt.success)
			}
		})
	}
}

func TestResultErr(t *testing.T) {
	res, _ := at.ParseResult("+CME ERROR: 30")

	var cme *at.CMEError
	if !errors.As(res.Err(), &cme) {
		t.Fatalf("expected *CMEError, got %T", res.Err())
	}
	if cme.Code != at.CMENoNetwork {
		t.Errorf("expected code %d, got %d", at.CMENoNetwork, cme.Code)
	}
	if cme.Error() != "CME ERROR: 30" {
		t.Errorf("unexpected message %q", cme.Error())
	}

	res, _ = at.ParseResult("NO CARRIER")
	var fe *at.FinalError
	if !errors.As(res.Err(), &fe) || fe.Code != at.ResultNoCarrier {
		t.Errorf("expected FinalError NO CARRIER, got %v", res.Err())
	}
}
