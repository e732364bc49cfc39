package meetup_test

import (
	"errors"
	"fmt"
	"testing"

	"travelquest/backend/internal/meetup"
	"travelquest/backend/internal/storage"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		err     error
		code    string
		refusal bool
	}{
		{nil, "", false},
		{fmt.Errorf("%w: empty id", meetup.ErrInvalidArgument), meetup.CodeInvalidArgument, false},
		{meetup.ErrAlreadyPending, meetup.CodeAlreadyPending, true},
		{meetup.ErrAlreadyAccepted, meetup.CodeAlreadyAccepted, true},
		{meetup.ErrRateLimited, meetup.CodeRateLimited, true},
		{meetup.ErrAlreadyResolved, meetup.CodeAlreadyResolved, true},
		{meetup.ErrConflictingAcceptance, meetup.CodeConflictingAcceptance, true},
		{fmt.Errorf("%w: bob", meetup.ErrProfileNotFound), meetup.CodeProfileNotFound, false},
		{meetup.ErrConversationNotFound, meetup.CodeConversationNotFound, false},
		{meetup.ErrRequestNotFound, meetup.CodeRequestNotFound, false},
		{fmt.Errorf("resolve: %w", fmt.Errorf("%w after 5 attempts", storage.ErrAborted)), meetup.CodeConflict, false},
		{errors.New("disk on fire"), meetup.CodeInternal, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, meetup.Code(tt.err), "%v", tt.err)
		assert.Equal(t, tt.refusal, meetup.IsRefusal(tt.err), "%v", tt.err)
	}
}
