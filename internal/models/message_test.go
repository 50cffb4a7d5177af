package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDeliveryState(t *testing.T) {
	tests := []struct {
		raw    string
		want   DeliveryState
		wantOK bool
	}{
		{"DeliveredToTerminal", StateDelivered, true},
		{"DeliveredToNetwork", StateDelivered, true},
		{"deliveredtoterminal", StateDelivered, true},
		{"DeliveryImpossible", StateFailed, true},
		{"MessageWaiting", StateSent, true},
		{"DeliveryUncertain", StateSent, true},
		{"DeliveryNotificationNotSupported", StateSent, true},
		{"delivered", StateDelivered, true},
		{" READ ", StateRead, true},
		{"failed", StateFailed, true},
		{"sent", StateSent, true},
		{"pending", "", false},
		{"", "", false},
		{"Teleported", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseDeliveryState(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeliveryState_Valid(t *testing.T) {
	for _, s := range []DeliveryState{StatePending, StateSent, StateDelivered, StateRead, StateFailed} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, DeliveryState("accepted").Valid())
}

func TestMessage_DerivedDirection(t *testing.T) {
	msg := &Message{SenderPhone: "+221780000000", RecipientPhone: "+221771234567"}

	assert.True(t, msg.SentBy("+221780000000"))
	assert.False(t, msg.SentBy("+221771234567"))

	resp := msg.ToResponse("+221771234567")
	assert.False(t, resp.SentByUser)
	assert.Same(t, msg, resp.Message)
}

func TestCredential_IsValid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	var nilCred *Credential
	assert.False(t, nilCred.IsValid(now))
	assert.False(t, (&Credential{ExpiresAt: now.Unix() + 10}).IsValid(now), "empty token")
	assert.True(t, (&Credential{AccessToken: "t", ExpiresAt: now.Unix() + 1}).IsValid(now))
	assert.False(t, (&Credential{AccessToken: "t", ExpiresAt: now.Unix()}).IsValid(now), "expiry is exclusive")
}

func TestError_Classification(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("sending: %w", NewError(KindTransport, "carrier unreachable", cause))

	assert.True(t, errors.Is(err, ErrTransport))
	assert.False(t, errors.Is(err, ErrAuth))
	assert.True(t, errors.Is(err, cause), "cause must stay reachable")
	assert.Equal(t, KindTransport, KindOf(err))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "sending: carrier unreachable: connection refused", err.Error())

	assert.False(t, IsRetryable(Errorf(KindValidation, "body too long")))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, "not_found error", ErrNotFound.Error())
}
