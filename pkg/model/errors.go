package model

import (
	"fmt"
	"strings"
)

// UnknownStratumError is returned when a stratum id is not part of the
// precedence of a model.
type UnknownStratumError struct {
	Stratum    string
	Precedence Precedence
}

func (e *UnknownStratumError) Error() string {
	return fmt.Sprintf(`unknown stratum "%s", expected one of %s`, e.Stratum, strings.Join(e.Precedence, ", "))
}
