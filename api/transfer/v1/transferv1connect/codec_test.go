package transferv1connect

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	transferv1 "github.com/wolfeidau/orgdir/api/transfer/v1"
)

func TestCodecRoundTrip(t *testing.T) {
	codec := Codec{}
	require.Equal(t, "json", codec.Name())

	in := &transferv1.TransitionRequest{TransferID: uuid.New(), Reason: "not now"}
	data, err := codec.Marshal(in)
	require.NoError(t, err)

	out := &transferv1.TransitionRequest{}
	require.NoError(t, codec.Unmarshal(data, out))
	require.Equal(t, in, out)
}

func TestCodecUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "empty", payload: ""},
		{name: "whitespace", payload: " \n"},
		{name: "empty object", payload: "{}"},
		{name: "unknown field", payload: `{"transfer_id":"` + uuid.NewString() + `","bogus":1}`, wantErr: true},
		{name: "malformed", payload: `{"reason":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &transferv1.TransitionRequest{}
			err := Codec{}.Unmarshal([]byte(tt.payload), msg)
			if tt.wantErr {
				require.ErrorContains(t, err, "invalid message")
				return
			}
			require.NoError(t, err)
			require.Equal(t, &transferv1.TransitionRequest{}, msg)
		})
	}
}
