package relay

import "net"

// LocalIPv4 returns the first non-loopback IPv4 address of this machine, or
// "localhost" if there is none.
func LocalIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "localhost"
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip4 := ip.To4(); ip4 != nil && !ip4.IsLoopback() {
				return ip4.String()
			}
		}
	}
	return "localhost"
}

// AdvertisedURLs lists the addresses clients can use to reach the relay.
func AdvertisedURLs(port string) []string {
	urls := []string{"http://localhost:" + port}
	if ip := LocalIPv4(); ip != "localhost" {
		urls = append(urls, "http://"+ip+":"+port)
	}
	return urls
}
