package errors

import "sync"

var (
	catalogMu sync.RWMutex
	catalog   = map[Kind]string{
		KindInvalidURL:           "The request could not be built.",
		KindInvalidResponse:      "The server sent an unexpected response.",
		KindHTTP:                 "The request failed. Please try again.",
		KindDecoding:             "The server response could not be read.",
		KindConnection:           "Could not connect to the server.",
		KindTimeout:              "The request timed out.",
		KindUnauthorized:         "Your session has expired. Please sign in again.",
		KindOffline:              "You are offline. Showing saved data.",
		KindNoInternetConnection: "No internet connection.",
		KindNoData:               "No data was returned.",
		KindServer:               "Server error, try again later.",
		KindUnknown:              "Something went wrong.",
		KindNotFound:             "The item could not be found.",
	}
)

// SetMessages replaces catalogue entries, e.g. with localised text.
func SetMessages(messages map[Kind]string) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	for k, v := range messages {
		catalog[k] = v
	}
}

// UserMessage returns the text to show for e. 5xx HTTP failures use the
// server-error message. A message from the server body wins for 4xx failures.
func (e *Error) UserMessage() string {
	kind := e.Kind
	if kind == KindHTTP && e.StatusCode >= 500 {
		kind = KindServer
	}
	if kind == KindHTTP || kind == KindServer {
		if msg := e.ServerMessage(); msg != "" && e.StatusCode < 500 {
			return msg
		}
	}

	catalogMu.RLock()
	defer catalogMu.RUnlock()
	if msg, ok := catalog[kind]; ok {
		return msg
	}
	return catalog[KindUnknown]
}

// UserMessage returns the user-facing text for any error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if e := Get(err); e != nil {
		return e.UserMessage()
	}
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	return catalog[KindUnknown]
}
