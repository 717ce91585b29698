// Package customid encodes the action identifiers embedded in interactive
// components so a later click or selection can be routed back to its owner.
//
// An identifier is a tagged variant: a flat string type tag plus typed data,
// serialized as {"type":"...","data":{...}}.
package customid

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxLen is the gateway limit for a component custom ID.
const MaxLen = 100

// Type is the routing tag of an action identifier.
type Type string

const (
	TypeHelpUsers                  Type = "help-users"
	TypeHelpOwners                 Type = "help-owners"
	TypeCountryLetter              Type = "country-letter"
	TypeLocationCountry            Type = "location-country"
	TypeLocationSubdivision        Type = "location-subdivision"
	TypeRemoveLocation             Type = "remove-location"
	TypeRemoveLocationConfirmation Type = "remove-location-confirmation"
)

// Types lists every tag Decode understands.
func Types() []Type {
	return []Type{
		TypeHelpUsers,
		TypeHelpOwners,
		TypeCountryLetter,
		TypeLocationCountry,
		TypeLocationSubdivision,
		TypeRemoveLocation,
		TypeRemoveLocationConfirmation,
	}
}

var (
	ErrMalformed   = errors.New("malformed custom id")
	ErrUnknownType = errors.New("unknown custom id type")
	ErrTooLong     = errors.New("custom id exceeds gateway limit")
)

// Payload is the typed data of one identifier variant.
type Payload interface {
	ActionType() Type
}

type HelpUsers struct{}

type HelpOwners struct{}

// CountryLetter is a letter menu; Row keeps the two letter menus' IDs distinct.
type CountryLetter struct {
	Row int `json:"row"`
}

// LocationCountry and LocationSubdivision menus are split into parts of at
// most 25 options; Part keeps the IDs of sibling menus distinct.
type LocationCountry struct {
	Part int `json:"part,omitempty"`
}

type LocationSubdivision struct {
	Country string `json:"country"`
	Part    int    `json:"part,omitempty"`
}

type RemoveLocation struct{}

type RemoveLocationConfirmation struct {
	GuildID string `json:"guildID"`
}

func (HelpUsers) ActionType() Type                  { return TypeHelpUsers }
func (HelpOwners) ActionType() Type                 { return TypeHelpOwners }
func (CountryLetter) ActionType() Type              { return TypeCountryLetter }
func (LocationCountry) ActionType() Type            { return TypeLocationCountry }
func (LocationSubdivision) ActionType() Type        { return TypeLocationSubdivision }
func (RemoveLocation) ActionType() Type             { return TypeRemoveLocation }
func (RemoveLocationConfirmation) ActionType() Type { return TypeRemoveLocationConfirmation }

type envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes a payload into a custom ID.
func Encode(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", p.ActionType(), err)
	}
	raw, err := json.Marshal(envelope{Type: p.ActionType(), Data: data})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", p.ActionType(), err)
	}
	if len(raw) > MaxLen {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrTooLong, p.ActionType(), len(raw))
	}
	return string(raw), nil
}

// MustEncode is Encode for payloads known to fit; it panics otherwise.
func MustEncode(p Payload) string {
	s, err := Encode(p)
	if err != nil {
		panic(err)
	}
	return s
}

// TypeOf returns the tag of a custom ID without decoding its data.
func TypeOf(raw string) (Type, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env.Type, nil
}

// Decode parses a custom ID into its typed payload.
func Decode(raw string) (Payload, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeHelpUsers:
		return decodeData[HelpUsers](env)
	case TypeHelpOwners:
		return decodeData[HelpOwners](env)
	case TypeCountryLetter:
		return decodeData[CountryLetter](env)
	case TypeLocationCountry:
		return decodeData[LocationCountry](env)
	case TypeLocationSubdivision:
		return decodeData[LocationSubdivision](env)
	case TypeRemoveLocation:
		return decodeData[RemoveLocation](env)
	case TypeRemoveLocationConfirmation:
		return decodeData[RemoveLocationConfirmation](env)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeData[T Payload](env envelope) (Payload, error) {
	var v T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return nil, fmt.Errorf("%w: %s data: %v", ErrMalformed, env.Type, err)
	}
	return v, nil
}
