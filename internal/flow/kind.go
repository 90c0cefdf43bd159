// Package flow dispatches a run request to the strategy for its flow kind.
package flow

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of flows a run can ask for.
type Kind string

const (
	KindGrid       Kind = "grid"
	KindSimulation Kind = "simulation"
)

var ErrUnknownKind = errors.New("unknown flow")

// older clients name flows after the service that used to run them
var aliases = map[string]Kind{
	"grid":       KindGrid,
	"python":     KindGrid,
	"simulation": KindSimulation,
	"matlab":     KindSimulation,
}

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("%w: missing flow", ErrUnknownKind)
	}
	k, ok := aliases[s]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownKind, s)
	}
	return k, nil
}

func (k Kind) String() string { return string(k) }
