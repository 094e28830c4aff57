package notifications

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeTagsPayloadWithKind(t *testing.T) {
	raw, err := Encode(BonusAwardedPayload{
		Amount:    100,
		Currency:  "coins",
		AwardedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Equal(t, "bonus_awarded", fields["kind"])
	require.EqualValues(t, 100, fields["amount"])
	require.Equal(t, "coins", fields["currency"])
}

func TestDecodeDispatchesOnKind(t *testing.T) {
	cases := []Payload{
		WelcomePayload{UserName: "Ada", Actions: []Action{{Label: "claim", URL: "/welcome"}}},
		FeatureIntroPayload{UserName: "Ada", Features: []Feature{{Key: "resume_builder", URL: "/resumes"}}},
		TipsPayload{Tips: []string{"one", "two"}, URL: "/articles"},
		ActionsPayload{Actions: []Action{{Label: "open", URL: "/x"}}},
	}

	for _, payload := range cases {
		raw, err := Encode(payload)
		require.NoError(t, err)

		decoded, err := Decode(raw)
		require.NoError(t, err)
		require.Equal(t, payload, decoded)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"mystery"}`))
	require.True(t, errors.Is(err, ErrUnknownKind))

	p, err := Decode(nil)
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestActionsOf(t *testing.T) {
	require.Len(t, ActionsOf(FeatureIntroPayload{Features: []Feature{{Key: "a"}, {Key: "b"}}}), 2)
	require.Equal(t, []Action{{Label: "tips", URL: "/articles"}}, ActionsOf(TipsPayload{URL: "/articles"}))
	require.Nil(t, ActionsOf(BonusAwardedPayload{}))
}
