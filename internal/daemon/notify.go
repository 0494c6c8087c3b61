package daemon

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// SdNotify sends state lines to systemd via NOTIFY_SOCKET, for example
// SdNotify("READY=1", "STATUS=serving"). Outside systemd it does nothing.
func SdNotify(states ...string) error {
	socket := os.Getenv("NOTIFY_SOCKET")
	if socket == "" || len(states) == 0 {
		return nil
	}
	conn, err := net.Dial("unixgram", socket)
	if err != nil {
		return fmt.Errorf("sd-notify dial %s: %w", socket, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(strings.Join(states, "\n"))); err != nil {
		return fmt.Errorf("sd-notify write: %w", err)
	}
	return nil
}
