package model

import (
	"errors"
	"fmt"
)

// Conventional stratum ids, lowest precedence first.
const (
	Definition               = "definition"
	InheritedFromParentGroup = "inheritedFromParentGroup"
	User                     = "user"
	Runtime                  = "runtime"
)

// Precedence lists stratum ids from the lowest to the highest precedence. A
// value set in a later stratum overrides values set in earlier ones.
type Precedence []string

// CommonStrata is the stratum order used by catalog items and groups.
var CommonStrata = Precedence{Definition, InheritedFromParentGroup, User, Runtime}

func (p Precedence) Validate() error {
	if len(p) == 0 {
		return errors.New("empty precedence")
	}

	seen := make(map[string]bool, len(p))
	for _, s := range p {
		if len(s) == 0 {
			return errors.New("empty stratum id in precedence")
		}

		if seen[s] {
			return fmt.Errorf(`stratum "%s" appears twice in precedence`, s)
		}

		seen[s] = true
	}

	return nil
}

func (p Precedence) ranks() map[string]int {
	ranks := make(map[string]int, len(p))

	for i, s := range p {
		ranks[s] = i
	}

	return ranks
}

func (p Precedence) Clone() Precedence {
	out := make(Precedence, len(p))
	copy(out, p)
	return out
}
