package edgegap_client

// DeployRequest asks for a new deployment close to the given player addresses
type DeployRequest struct {
	AppName    string   `json:"app_name"`
	AppVersion string   `json:"app_version"`
	IPList     []string `json:"ip_list"`
}

type DeployResponse struct {
	RequestID      string `json:"request_id"`
	RequestDNS     string `json:"request_dns"`
	RequestApp     string `json:"request_app"`
	RequestVersion string `json:"request_version"`
	UserCount      int    `json:"request_user_count"`
}

// StatusResponse holds the subset of deployment status the matchmaker reads.
// Fields are pointers because the provider omits them while a deployment boots.
type StatusResponse struct {
	RequestID     string              `json:"request_id"`
	FQDN          *string             `json:"fqdn"`
	CurrentStatus string              `json:"current_status"`
	Running       *bool               `json:"running"`
	Error         *bool               `json:"error"`
	PublicIP      *string             `json:"public_ip"`
	Ports         map[string]PortInfo `json:"ports"`
}

type PortInfo struct {
	External int    `json:"external"`
	Internal int    `json:"internal"`
	Protocol string `json:"protocol"`
	Name     string `json:"name"`
}

// IsRunning reports whether the provider says the deployment is up
func (s *StatusResponse) IsRunning() bool {
	return s.Running != nil && *s.Running
}

// IsError reports whether the provider gave up on the deployment
func (s *StatusResponse) IsError() bool {
	return s.Error != nil && *s.Error
}

// Host returns the public hostname, falling back to the public IP
func (s *StatusResponse) Host() string {
	if s.FQDN != nil && *s.FQDN != "" {
		return *s.FQDN
	}
	if s.PublicIP != nil {
		return *s.PublicIP
	}
	return ""
}

// ExternalPort returns the external port mapped for portName
func (s *StatusResponse) ExternalPort(portName string) (int, bool) {
	p, ok := s.Ports[portName]
	if !ok || p.External == 0 {
		return 0, false
	}
	return p.External, true
}
