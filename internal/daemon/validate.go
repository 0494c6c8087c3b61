package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/nikicat/fw-prompt/internal/prompt"
)

// ErrInvalidRequest wraps every validation failure.
var ErrInvalidRequest = errors.New("invalid prompt request")

var knownProtos = map[string]bool{
	"tcp":    true,
	"udp":    true,
	"icmp":   true,
	"icmpv6": true,
}

// NormalizeRequest checks req in place and lowercases its protocol.
// Invalid requests are never queued.
func NormalizeRequest(req *prompt.Request) error {
	proto := strings.ToLower(strings.TrimSpace(req.Proto))
	if !knownProtos[proto] {
		return fmt.Errorf("%w: unknown protocol %q", ErrInvalidRequest, req.Proto)
	}
	req.Proto = proto

	if req.Port < 0 || req.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidRequest, req.Port)
	}
	if req.PID < -1 {
		return fmt.Errorf("%w: pid %d", ErrInvalidRequest, req.PID)
	}
	if req.IP != "" && net.ParseIP(req.IP) == nil {
		return fmt.Errorf("%w: malformed ip %q", ErrInvalidRequest, req.IP)
	}
	if req.Action != prompt.ActionDeny && req.Action != prompt.ActionAllow {
		return fmt.Errorf("%w: action %d", ErrInvalidRequest, req.Action)
	}
	return nil
}

// SampleRequest builds the synthetic request raised by TestPrompt.
func SampleRequest() *prompt.Request {
	return &prompt.Request{
		Application: "Firefox",
		Icon:        "firefox",
		Path:        "/usr/bin/firefox-esr",
		Address:     "www.subgraph.com",
		Port:        443,
		IP:          "242.12.111.18",
		Origin:      "linux",
		Proto:       "tcp",
		UID:         int32(os.Getuid()),
		GID:         int32(os.Getgid()),
		User:        "user",
		Group:       "user",
		PID:         2342,
		TLSGuard:    true,
		Expanded:    true,
		Action:      prompt.ActionAllow,
	}
}

// RequestArgs lays req out in RequestPrompt argument order.
func RequestArgs(req *prompt.Request) []any {
	return []any{
		req.Application, req.Icon, req.Path, req.Address, req.Port,
		req.IP, req.Origin, req.Proto, req.UID, req.GID, req.User, req.Group,
		req.PID, req.Sandbox, req.TLSGuard, req.OptString, req.Expanded, req.Expert, req.Action,
	}
}
