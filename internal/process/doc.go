// Package process runs the system programs the device depends on.
//
// Two shapes are supported:
//
//   - Manager supervises a long-running daemon such as hostapd or dnsmasq
//     while the access point is up: start, capture output, restart on
//     failure, and a graceful process-group stop.
//   - Runner executes a one-shot command (ip, iwlist, the reboot command)
//     and returns its output. The wifi package depends on the interface so
//     tests can substitute canned output.
//
// Example:
//
//	mgr := process.NewManager(process.Config{
//	    Name:   "hostapd",
//	    Binary: "/usr/sbin/hostapd",
//	    Args:   []string{"/run/lumy/hostapd.conf"},
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
