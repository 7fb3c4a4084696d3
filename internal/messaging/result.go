package messaging

import "fmt"

// Greeting is the request sent once per frame. Exactly five bytes, no
// terminator.
var Greeting = []byte("Hello")

// Reply is what Responder answers with
var Reply = []byte("World")

// ConnState tracks the client lifecycle. Closed is terminal.
type ConnState int

const (
	Disconnected ConnState = iota
	Connected
	Closed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// Result is the outcome of one exchange. Exactly one of Reply or Err is set.
type Result struct {
	Reply []byte
	Err   error
}

// Success wraps a reply
func Success(reply []byte) Result {
	return Result{Reply: reply}
}

// Failure wraps the reason an exchange produced no reply
func Failure(err error) Result {
	return Result{Err: err}
}

// OK reports whether a reply arrived
func (r Result) OK() bool {
	return r.Err == nil
}

func (r Result) String() string {
	if r.OK() {
		return fmt.Sprintf("success(%q)", r.Reply)
	}
	return fmt.Sprintf("failure(%v)", r.Err)
}
