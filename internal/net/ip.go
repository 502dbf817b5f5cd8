package net

import (
	"fmt"
	"net"
	"strconv"

	"LocalWhiteboard/internal/logging"
)

// ShareLink is the whiteboard:// link other instances open to join a hub.
func ShareLink(ip string, port int) string {
	return Scheme + net.JoinHostPort(ip, strconv.Itoa(port))
}

// HubShareLink builds the share link for a hub listening on addr. A hub
// bound to one address shares that address; a wildcard listener shares the
// machine's preferred LAN address.
func HubShareLink(addr net.Addr) (string, error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return "", fmt.Errorf("net: share link needs a tcp listener, got %s", addr.Network())
	}
	if tcp.IP != nil && !tcp.IP.IsUnspecified() {
		return ShareLink(tcp.IP.String(), tcp.Port), nil
	}
	ip, err := GetOutgoingIP()
	if err != nil {
		return "", err
	}
	return ShareLink(ip, tcp.Port), nil
}

// GetOutgoingIP finds the local address used for the default route, or a
// LAN interface address when there is no route out.
func GetOutgoingIP() (string, error) {
	// udp "dial" only selects a route; nothing is sent
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err == nil {
		defer conn.Close()
		if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok && !ua.IP.IsUnspecified() {
			return ua.IP.String(), nil
		}
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	if ip := lanIP(addrs); ip != nil {
		return ip.String(), nil
	}
	logging.For("hub").Warn("no suitable local IP found, share link uses loopback")
	return "127.0.0.1", nil
}

// lanIP picks the first IPv4 interface address another machine could reach:
// not loopback, not link-local.
func lanIP(addrs []net.Addr) net.IP {
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP.To4()
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return ip
	}
	return nil
}
