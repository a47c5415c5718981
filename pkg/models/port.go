package models

// ParsePortID parses a port reference in "{node_id}:{port_name}" form.
func ParsePortID(portID string) (string, string, bool) {
	for i := range len(portID) {
		if portID[i] == ':' {
			return portID[:i], portID[i+1:], true
		}
	}

	return "", "", false
}

// MakePortID creates a port reference from a node ID and a parameter name.
func MakePortID(nodeID, portName string) string {
	return nodeID + ":" + portName
}
