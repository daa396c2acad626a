package proxy

import "encoding/json"

// containerNetworkSettings is the narrow slice of a Docker container
// inspect payload (models.Process.Data) the translator needs: one IP
// address per attached network.
type containerNetworkSettings struct {
	NetworkSettings struct {
		Networks map[string]struct {
			IPAddress string `json:"IPAddress"`
		} `json:"Networks"`
	} `json:"NetworkSettings"`
}

// processIPs returns every IP address a Process's runtime container is
// reachable on, one per attached Docker network.
func processIPs(data json.RawMessage) []string {
	var cns containerNetworkSettings
	if err := json.Unmarshal(data, &cns); err != nil {
		return nil
	}
	var ips []string
	for _, n := range cns.NetworkSettings.Networks {
		if n.IPAddress != "" {
			ips = append(ips, n.IPAddress)
		}
	}
	return ips
}
