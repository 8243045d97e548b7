// Package netclass decides whether the active network is metered.
//
// A Static classifier answers from configuration. The udev classifier seeds
// itself from the kernel's view of network interfaces and follows netlink
// add/remove events, treating any present interface whose DEVTYPE is listed
// as metered (mobile broadband by default).
package netclass
