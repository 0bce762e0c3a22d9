package steamid

import (
	"strconv"
)

// SteamID represents a 64-bit Steam identifier (from steamid.h).
// Layout: universe (8 bits) | type (4 bits) | instance (20 bits) | account ID (32 bits).
type SteamID uint64

// Universe represents a Steam universe (EUniverse).
type Universe uint32

const (
	UniverseInvalid Universe = iota
	UniversePublic
	UniverseBeta
	UniverseInternal
	UniverseDev
)

// IsDefined reports whether u is a known, non-invalid universe.
func (u Universe) IsDefined() bool {
	return u > UniverseInvalid && u <= UniverseDev
}

func (u Universe) String() string {
	switch u {
	case UniversePublic:
		return "Public"
	case UniverseBeta:
		return "Beta"
	case UniverseInternal:
		return "Internal"
	case UniverseDev:
		return "Dev"
	default:
		return "Invalid"
	}
}

// Account types (EAccountType). Only the ones the authenticator cares about.
const (
	AccountTypeInvalid    = 0
	AccountTypeIndividual = 1
)

// FromSteamID64 returns a new SteamID based on the SteamID64 format.
func FromSteamID64(steamID64 uint64) SteamID {
	return SteamID(steamID64)
}

// FromString takes a decimal string ("765611...") and returns a new SteamID.
func FromString(str string) (SteamID, error) {
	num, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, err
	}
	return SteamID(num), nil
}

// Universe returns the universe part of the SteamID.
func (s SteamID) Universe() Universe {
	return Universe(s >> 56)
}

// Type returns the account type part of the SteamID.
func (s SteamID) Type() int32 {
	return int32((s >> 52) & 0xF)
}

// Instance returns the instance part of the SteamID.
func (s SteamID) Instance() int32 {
	return int32((s >> 32) & 0xFFFFF)
}

// AccountID returns the account ID part of the SteamID.
func (s SteamID) AccountID() uint32 {
	return uint32(s & 0xFFFFFFFF)
}

// IsIndividual reports whether the SteamID refers to a single user account
// with a nonzero account ID. Authenticator operations are only meaningful
// for individual accounts.
func (s SteamID) IsIndividual() bool {
	return s.Type() == AccountTypeIndividual && s.AccountID() != 0 && s.Universe().IsDefined()
}

// ToSteamID64 returns the SteamID in SteamID64 format. Ex. 76561197960287930.
func (s SteamID) ToSteamID64() uint64 {
	return uint64(s)
}

// String returns the SteamID64 decimal representation.
func (s SteamID) String() string {
	return strconv.FormatUint(uint64(s), 10)
}
