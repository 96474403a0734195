package proto

import "strconv"

// ReqResp is a single enum domain covering both SIP response status codes
// and request methods: values 0..999 are status codes (100, 180, 200,
// 486, ...); values >=1000 are method tags for requests.
type ReqResp int

const methodBase ReqResp = 1000

// Method tags. Their order carries no meaning: MethodAck is not a
// dialog-initiating request, and the "complete_only" capture filter checks
// for it explicitly rather than relying on an ordinal cutoff.
const (
	MethodInvite ReqResp = methodBase + iota
	MethodBye
	MethodCancel
	MethodRegister
	MethodOptions
	MethodSubscribe
	MethodNotify
	MethodMessage
	MethodAck
	MethodPrack
	MethodUpdate
	MethodInfo
	MethodRefer
	MethodPublish
)

var methodNames = map[ReqResp]string{
	MethodInvite:    "INVITE",
	MethodBye:       "BYE",
	MethodCancel:    "CANCEL",
	MethodRegister:  "REGISTER",
	MethodOptions:   "OPTIONS",
	MethodSubscribe: "SUBSCRIBE",
	MethodNotify:    "NOTIFY",
	MethodMessage:   "MESSAGE",
	MethodAck:       "ACK",
	MethodPrack:     "PRACK",
	MethodUpdate:    "UPDATE",
	MethodInfo:      "INFO",
	MethodRefer:     "REFER",
	MethodPublish:   "PUBLISH",
}

var namesToMethod = func() map[string]ReqResp {
	m := make(map[string]ReqResp, len(methodNames))
	for rr, name := range methodNames {
		m[name] = rr
	}
	return m
}()

// MethodFromName maps a SIP request method token to its ReqResp value.
// The second return is false for unrecognized methods.
func MethodFromName(name string) (ReqResp, bool) {
	rr, ok := namesToMethod[name]
	return rr, ok
}

// ResponseCode builds the ReqResp for a numeric SIP status code.
func ResponseCode(code int) ReqResp { return ReqResp(code) }

// IsResponse reports whether this value names a SIP response status code.
func (r ReqResp) IsResponse() bool { return r < methodBase }

// IsRequest reports whether this value names a SIP request method.
func (r ReqResp) IsRequest() bool { return !r.IsResponse() }

// StatusClass returns the SIP response class (1-6) for a response value, or
// 0 if this is not a response.
func (r ReqResp) StatusClass() int {
	if !r.IsResponse() {
		return 0
	}
	return int(r) / 100
}

func (r ReqResp) String() string {
	if r.IsResponse() {
		return strconv.Itoa(int(r))
	}
	if name, ok := methodNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}
