package rest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTPCode_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    otpCode
		wantErr bool
	}{
		{`482913`, otpCode{Value: 482913, Present: true}, false},
		{`"482913"`, otpCode{Value: 482913, Present: true}, false},
		{`" 42 "`, otpCode{Value: 42, Present: true}, false},
		{`"0"`, otpCode{Value: 0, Present: true}, false},
		{`null`, otpCode{}, false},
		{`""`, otpCode{}, false},
		{`"abc"`, otpCode{}, true},
		{`1.5`, otpCode{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got struct {
				OTP otpCode `json:"otp"`
			}
			err := json.Unmarshal([]byte(`{"otp":`+tt.in+`}`), &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.OTP)
		})
	}
}
