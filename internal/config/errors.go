package config

import "errors"

// ErrProfileNotFound is wrapped by EffectiveFor when profileName does not
// match any configured profile.
var ErrProfileNotFound = errors.New("profile not found")
