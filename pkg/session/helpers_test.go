package session_test

import "github.com/aretw0/switchboard/pkg/ports"

func portsDisconnected(reason string) ports.EngineEvent {
	return ports.EngineEvent{Kind: ports.EngineDisconnected, Reason: reason}
}

func portsAuthFailure(reason string) ports.EngineEvent {
	return ports.EngineEvent{Kind: ports.EngineAuthFailure, Reason: reason}
}
