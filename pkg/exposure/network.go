package exposure

import (
	"math"

	"argus/pkg/intel"
)

// HighRiskPorts are services that attackers probe first. Each one open adds
// a flat bonus on top of the per-port score.
var HighRiskPorts = map[int]bool{
	21:   true, // ftp
	22:   true, // ssh
	23:   true, // telnet
	135:  true, // msrpc
	139:  true, // netbios
	445:  true, // smb
	1433: true, // mssql
	3306: true, // mysql
	3389: true, // rdp
	5432: true, // postgres
}

// NetworkModel scores exposure through open ports and network posture.
type NetworkModel struct{}

// NetworkDetail is the per-call breakdown of a network exposure score.
type NetworkDetail struct {
	ExposureScore      float64     `json:"exposure_score"`
	ExposureLevel      intel.Level `json:"exposure_level"`
	OpenPortCount      int         `json:"open_port_count"`
	HighRiskPorts      []int       `json:"high_risk_ports,omitempty"`
	PubliclyAccessible bool        `json:"publicly_accessible"`
	NoFirewall         bool        `json:"no_firewall"`
	WeakEncryption     bool        `json:"weak_encryption"`
	OutdatedProtocol   bool        `json:"outdated_protocol"`
	RelationshipCount  int         `json:"relationship_count"`
}

// Score returns the 0-100 network exposure score.
func (NetworkModel) Score(e *intel.Entity) float64 {
	return networkDetail(e).ExposureScore
}

// Details returns the score with its contributing signals.
func (NetworkModel) Details(e *intel.Entity) NetworkDetail {
	return networkDetail(e)
}

// OpenPorts reads the open_ports metadata list, tolerating numeric encodings.
func OpenPorts(meta map[string]any) []int {
	raw := intel.MetaList(meta, "open_ports")
	ports := make([]int, 0, len(raw))
	for _, v := range raw {
		switch p := v.(type) {
		case float64:
			ports = append(ports, int(p))
		case int:
			ports = append(ports, p)
		}
	}
	return ports
}

func networkDetail(e *intel.Entity) NetworkDetail {
	var d NetworkDetail
	if e == nil {
		d.ExposureLevel = intel.LevelFromExposure(0)
		return d
	}
	meta := e.Meta()

	ports := OpenPorts(meta)
	d.OpenPortCount = len(ports)
	for _, p := range ports {
		if HighRiskPorts[p] {
			d.HighRiskPorts = append(d.HighRiskPorts, p)
		}
	}
	d.PubliclyAccessible = intel.MetaBool(meta, "publicly_accessible")
	d.NoFirewall = intel.MetaBool(meta, "no_firewall")
	d.WeakEncryption = intel.MetaBool(meta, "weak_encryption")
	d.OutdatedProtocol = intel.MetaBool(meta, "outdated_protocol")
	d.RelationshipCount = e.RelationshipCount

	score := math.Min(float64(d.OpenPortCount)*2.0, 20.0)
	score += float64(len(d.HighRiskPorts)) * 8.0
	if d.PubliclyAccessible {
		score += 15
	}
	if d.NoFirewall {
		score += 20
	}
	if d.WeakEncryption {
		score += 15
	}
	if d.OutdatedProtocol {
		score += 10
	}
	// Heavily connected nodes widen the blast radius.
	if d.RelationshipCount > 10 {
		score += math.Min(float64(d.RelationshipCount-10)*2.0, 20.0)
	}

	d.ExposureScore = intel.Clamp100(score)
	d.ExposureLevel = intel.LevelFromExposure(d.ExposureScore)
	return d
}
