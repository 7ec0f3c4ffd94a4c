package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"settleload/internal/action"
)

// Sample is the outcome of one Execute call, in the shape load hosts record.
type Sample struct {
	Index  int
	Action action.Type
	Label  string
	// Headers describes the call: action type, service path and scenario index.
	Headers       string
	RequestBytes  []byte
	ResponseBytes []byte
	Success       bool
	// ResponseCode is "200" for success and business rejections, "500" for
	// other failures, and "500-<status>" for transport errors with a status.
	ResponseCode string
	Message      string
	Class        Class
	Err          error
	Elapsed      time.Duration
	// Executed is the template carrying this execution's response. The
	// template itself is never modified.
	Executed action.Action
}

func newSample(target string, index int, tmpl action.Action, out outcome, elapsed time.Duration) Sample {
	s := Sample{
		Index:        index,
		Action:       tmpl.Type,
		Label:        fmt.Sprintf("[%s]:[%s]", target, tmpl.Type),
		Headers:      fmt.Sprintf("Action-Type: %s\nURL: %s\nTest Data Index: %d", tmpl.Type, out.path, index),
		RequestBytes: out.sent,
		Class:        Classify(out.err),
		Err:          out.err,
		Elapsed:      elapsed,
		Executed:     tmpl,
	}
	if len(s.RequestBytes) == 0 {
		s.RequestBytes = []byte("{}")
	}

	switch s.Class {
	case ClassOK:
		s.Success = true
		s.ResponseCode = "200"
		s.Message = "SUCCESS"
		s.ResponseBytes = out.received
		if json.Valid(out.received) {
			s.Executed = tmpl.WithResponse(json.RawMessage(out.received))
		}
	case ClassBusinessRejection:
		var rej *BusinessRejection
		errors.As(out.err, &rej)
		s.ResponseCode = "200"
		s.Label += ":" + rej.Code
		s.ResponseBytes = rej.Body
		s.Message = failureMessage(s.Class, tmpl.Type, out.err)
	default:
		s.ResponseCode = "500"
		if code := transportCode(out.err); code != 0 {
			s.ResponseCode = fmt.Sprintf("500-%d", code)
		}
		s.ResponseBytes = out.received
		if len(s.ResponseBytes) == 0 {
			s.ResponseBytes = []byte(out.err.Error())
		}
		s.Message = failureMessage(s.Class, tmpl.Type, out.err)
	}
	return s
}

func failureMessage(c Class, t action.Type, err error) string {
	return fmt.Sprintf("ERROR-%s (%s): %v", strings.ToUpper(string(c)), t, err)
}
