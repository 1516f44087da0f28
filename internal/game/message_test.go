package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Message
		err  error
	}{
		{name: "identify", in: `{"type":"IDENTIFY","deviceToken":"dev-123456"}`, want: IdentifyMessage{DeviceToken: "dev-123456"}},
		{name: "identify_legacy_field", in: `{"type":"IDENTIFY","deviceId":"dev-abcdef"}`, want: IdentifyMessage{DeviceToken: "dev-abcdef"}},
		{name: "register", in: `{"type":"REGISTER","name":"Ana","deviceToken":"dev-123456"}`, want: RegisterMessage{Name: "Ana", DeviceToken: "dev-123456"}},
		{name: "register_missing_name", in: `{"type":"REGISTER","deviceToken":"dev-123456"}`, err: ErrMissingData},
		{name: "approve", in: `{"type":"APPROVE_ROSTER"}`, want: ApproveRosterMessage{}},
		{name: "start", in: `{"type":"START_ROUND"}`, want: StartRoundMessage{}},
		{name: "confirm", in: `{"type":"CONFIRM_SCRAMBLE","jobId":"j1","deviceId":"dev-123456"}`, want: ConfirmScrambleMessage{JobID: "j1", DeviceToken: "dev-123456"}},
		{name: "confirm_task_alias", in: `{"type":"CONFIRM_TASK","jobId":"j1","deviceToken":"dev-123456"}`, want: ConfirmScrambleMessage{JobID: "j1", DeviceToken: "dev-123456"}},
		{name: "confirm_missing_job", in: `{"type":"CONFIRM_SCRAMBLE","deviceToken":"dev-123456"}`, err: ErrMissingData},
		{name: "pause_token", in: `{"type":"PAUSE","deviceToken":"dev-123456"}`, want: PauseMessage{DeviceToken: "dev-123456"}},
		{name: "pause_id_only", in: `{"type":"PAUSE","id":"c1"}`, err: ErrMissingData},
		{name: "pause_empty", in: `{"type":"PAUSE"}`, err: ErrMissingData},
		{name: "reset", in: `{"type":"RESET_ALL"}`, want: ResetAllMessage{}},
		{name: "next_attempt", in: `{"type":"NEXT_ATTEMPT"}`, want: NextAttemptMessage{}},
		{name: "bad_json", in: `{"type":`, err: ErrMalformed},
		{name: "no_type", in: `{"name":"Ana"}`, err: ErrMalformed},
		{name: "not_an_object", in: `[1,2]`, err: ErrMalformed},
		{name: "unknown_type", in: `{"type":"ARM_SOLVE","id":"c1"}`, err: ErrUnknownType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseMessage([]byte(tc.in))
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
