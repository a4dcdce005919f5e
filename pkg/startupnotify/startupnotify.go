// Package startupnotify implements the one-shot startup handshake from
// spec §6: once the daemon's listeners are up, if an operator configured
// an address to tell, it dials it and writes a single JSON object
// describing where the daemon can be reached. Failure here is fatal at
// boot, since it usually means a supervising process will never learn
// the daemon started.
package startupnotify

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"
)

// dialTimeout bounds how long Notify waits to connect before failing.
const dialTimeout = 5 * time.Second

// Notification is the JSON payload written to the configured address.
type Notification struct {
	HttpAddr  string
	HrpcAddr  string
	ProcessId int
}

// Notify dials addr and writes a one-shot JSON Notification built from
// httpAddr and hrpcAddr. If addr is empty, Notify is a no-op.
func Notify(addr, httpAddr, hrpcAddr string) error {
	if addr == "" {
		return nil
	}
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("startup notification to %s: %w", addr, err)
	}
	defer conn.Close()

	n := Notification{
		HttpAddr:  httpAddr,
		HrpcAddr:  hrpcAddr,
		ProcessId: os.Getpid(),
	}
	enc := json.NewEncoder(conn)
	if err := enc.Encode(n); err != nil {
		return fmt.Errorf("startup notification to %s: %w", addr, err)
	}
	return nil
}
