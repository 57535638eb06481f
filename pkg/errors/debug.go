package errors

import (
	"errors"
	"fmt"
)

// ErrorDump flattens an error chain for structured logging.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	RemoteStatus int    `json:"remote_status,omitempty"`
	RemoteBody   string `json:"remote_body,omitempty"`
}

// RemoteStatusCarrier is implemented by errors that carry an upstream HTTP status.
type RemoteStatusCarrier interface {
	RemoteStatus() int
	RemoteBody() string
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var remote RemoteStatusCarrier
	if errors.As(err, &remote) {
		d.RemoteStatus = remote.RemoteStatus()
		d.RemoteBody = remote.RemoteBody()
	}

	return d
}
