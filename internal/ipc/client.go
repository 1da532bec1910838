package ipc

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

const clientTimeout = 2 * time.Second

// SendRaw dials socketPath, writes cmd, half-closes the write side, and
// returns everything the daemon writes back before closing the connection.
// Grounded on original_source/src/ipc/client.rs's send_raw.
func SendRaw(socketPath, cmd string) (string, error) {
	if _, err := os.Stat(socketPath); err != nil {
		return "", fmt.Errorf("daemon not running")
	}

	conn, err := net.DialTimeout("unix", socketPath, clientTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(clientTimeout))

	if _, err := conn.Write([]byte(cmd)); err != nil {
		return "", fmt.Errorf("write failed: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}

	resp, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("read failed: %w", err)
	}
	return string(resp), nil
}
