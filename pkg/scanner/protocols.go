package scanner

// ProtocolType represents how to connect to the service
type ProtocolType int

const (
	ProtocolTLS ProtocolType = iota
	ProtocolSTARTTLS
)

// ServiceInfo contains information about a network service
type ServiceInfo struct {
	Name         string
	Protocol     ProtocolType
	STARTTLSType string // "smtp", "imap", "pop3"
}

// Well-known port to service mapping. Only protocols with a STARTTLS
// negotiator are mapped as STARTTLS; everything else is probed as direct TLS.
var portServiceMap = map[string]ServiceInfo{
	// SMTP
	"25":  {Name: "SMTP", Protocol: ProtocolSTARTTLS, STARTTLSType: "smtp"},
	"587": {Name: "SMTP Submission", Protocol: ProtocolSTARTTLS, STARTTLSType: "smtp"},
	"465": {Name: "SMTPS", Protocol: ProtocolTLS},

	// IMAP
	"143": {Name: "IMAP", Protocol: ProtocolSTARTTLS, STARTTLSType: "imap"},
	"993": {Name: "IMAPS", Protocol: ProtocolTLS},

	// POP3
	"110": {Name: "POP3", Protocol: ProtocolSTARTTLS, STARTTLSType: "pop3"},
	"995": {Name: "POP3S", Protocol: ProtocolTLS},

	// Web
	"443":  {Name: "HTTPS", Protocol: ProtocolTLS},
	"8443": {Name: "HTTPS-Alt", Protocol: ProtocolTLS},

	// Other common TLS ports
	"636":  {Name: "LDAPS", Protocol: ProtocolTLS},
	"990":  {Name: "FTPS", Protocol: ProtocolTLS},
	"5061": {Name: "SIPS", Protocol: ProtocolTLS},
}

// DetectServiceType determines the service type based on port
func DetectServiceType(port string) ServiceInfo {
	if service, ok := portServiceMap[port]; ok {
		return service
	}

	// Default to direct TLS for unknown ports
	return ServiceInfo{
		Name:     "Unknown",
		Protocol: ProtocolTLS,
	}
}
