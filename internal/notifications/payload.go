package notifications

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Kind tags a notification payload variant.
type Kind string

const (
	KindWelcome      Kind = "welcome"
	KindBonusAwarded Kind = "bonus_awarded"
	KindFeatureIntro Kind = "feature_intro"
	KindTips         Kind = "tips"
	KindActions      Kind = "actions"
)

// ErrUnknownKind is returned by Decode for an unrecognised payload tag.
var ErrUnknownKind = errors.New("notifications: unknown payload kind")

// Payload is the structured data attached to a notification. Each variant
// supplies the variables its template interpolates.
type Payload interface {
	Kind() Kind
	Vars() map[string]any
}

// Action is a call to action rendered as a button or link.
type Action struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Feature is a single product area highlighted by the feature-intro stage.
type Feature struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type WelcomePayload struct {
	UserName string   `json:"user_name"`
	Actions  []Action `json:"actions,omitempty"`
}

func (WelcomePayload) Kind() Kind { return KindWelcome }

func (p WelcomePayload) Vars() map[string]any {
	return map[string]any{"name": p.UserName}
}

type BonusAwardedPayload struct {
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	AwardedAt time.Time `json:"awarded_at"`
}

func (BonusAwardedPayload) Kind() Kind { return KindBonusAwarded }

func (p BonusAwardedPayload) Vars() map[string]any {
	return map[string]any{"amount": p.Amount, "currency": p.Currency}
}

type FeatureIntroPayload struct {
	UserName string    `json:"user_name"`
	Features []Feature `json:"features"`
}

func (FeatureIntroPayload) Kind() Kind { return KindFeatureIntro }

func (p FeatureIntroPayload) Vars() map[string]any {
	return map[string]any{"name": p.UserName}
}

type TipsPayload struct {
	Tips []string `json:"tips"`
	URL  string   `json:"url,omitempty"`
}

func (TipsPayload) Kind() Kind { return KindTips }

func (p TipsPayload) Vars() map[string]any {
	return map[string]any{"count": len(p.Tips)}
}

// ActionsPayload carries only calls to action, for producers outside onboarding.
type ActionsPayload struct {
	Actions []Action `json:"actions"`
}

func (ActionsPayload) Kind() Kind { return KindActions }

func (ActionsPayload) Vars() map[string]any { return nil }

// Encode serialises a payload as a flat JSON object tagged with "kind".
func Encode(p Payload) (datatypes.JSON, error) {
	if p == nil {
		return nil, nil
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("notifications: encode %s: %w", p.Kind(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("notifications: encode %s: %w", p.Kind(), err)
	}
	tag, _ := json.Marshal(p.Kind())
	fields["kind"] = tag

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("notifications: encode %s: %w", p.Kind(), err)
	}
	return datatypes.JSON(out), nil
}

// Decode restores the payload variant named by the "kind" tag. Empty input
// decodes to a nil payload.
func Decode(raw []byte) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var head struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("notifications: decode payload: %w", err)
	}

	var p Payload
	switch head.Kind {
	case KindWelcome:
		var v WelcomePayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("notifications: decode %s: %w", head.Kind, err)
		}
		p = v
	case KindBonusAwarded:
		var v BonusAwardedPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("notifications: decode %s: %w", head.Kind, err)
		}
		p = v
	case KindFeatureIntro:
		var v FeatureIntroPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("notifications: decode %s: %w", head.Kind, err)
		}
		p = v
	case KindTips:
		var v TipsPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("notifications: decode %s: %w", head.Kind, err)
		}
		p = v
	case KindActions:
		var v ActionsPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("notifications: decode %s: %w", head.Kind, err)
		}
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, head.Kind)
	}
	return p, nil
}

// ActionsOf returns the calls to action carried by a payload, if any.
func ActionsOf(p Payload) []Action {
	switch v := p.(type) {
	case WelcomePayload:
		return v.Actions
	case ActionsPayload:
		return v.Actions
	case FeatureIntroPayload:
		actions := make([]Action, 0, len(v.Features))
		for _, f := range v.Features {
			actions = append(actions, Action{Label: f.Key, URL: f.URL})
		}
		return actions
	case TipsPayload:
		if v.URL != "" {
			return []Action{{Label: "tips", URL: v.URL}}
		}
	}
	return nil
}
