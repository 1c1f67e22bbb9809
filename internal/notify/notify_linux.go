//go:build linux

package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notifyBusName    = "org.freedesktop.Notifications"
	notifyObjectPath = "/org/freedesktop/Notifications"
	notifyMethod     = "org.freedesktop.Notifications.Notify"
)

// Desktop sends notifications over the session bus.
type Desktop struct {
	conn *dbus.Conn
}

// New connects to the session bus. Fails on headless systems; callers
// should fall back to Nop.
func New() (*Desktop, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Desktop{conn: conn}, nil
}

// KeyWarning raises a desktop notification about a chattering key.
func (d *Desktop) KeyWarning(keyName string, blockedCount uint64) error {
	obj := d.conn.Object(notifyBusName, dbus.ObjectPath(notifyObjectPath))

	summary := "Key chatter detected"
	body := fmt.Sprintf("%s has produced %d blocked presses. The switch may be failing.", keyName, blockedCount)

	call := obj.Call(notifyMethod, 0,
		"chatterd",       // app_name
		uint32(0),        // replaces_id
		"input-keyboard", // app_icon
		summary,          // summary
		body,             // body
		[]string{},       // actions
		map[string]dbus.Variant{
			"urgency": dbus.MakeVariant(byte(1)), // normal
		},
		int32(10000), // expire_timeout ms
	)
	if call.Err != nil {
		return fmt.Errorf("send notification: %w", call.Err)
	}
	return nil
}

// Close closes the bus connection.
func (d *Desktop) Close() error {
	return d.conn.Close()
}
