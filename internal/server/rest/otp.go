package rest

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

var errMalformedOTP = errors.New("otp must be a number")

// otpCode accepts the code as a JSON number or a numeric string.
type otpCode struct {
	Value   int
	Present bool
}

func (o *otpCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" {
		return nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return errMalformedOTP
	}

	o.Value = n
	o.Present = true
	return nil
}
