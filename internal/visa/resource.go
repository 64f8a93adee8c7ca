package visa

import (
	"fmt"
	"strconv"
	"strings"
)

// defaultGPIBPort is the TCP port used by Prologix-style GPIB-LAN
// controllers.
const defaultGPIBPort = 1234

// ResourceKind identifies how a parsed resource reaches its instrument.
type ResourceKind int

const (
	// SocketResource is a raw TCP socket instrument (TCPIP::host::port::SOCKET).
	SocketResource ResourceKind = iota
	// GPIBResource is an instrument behind a GPIB-LAN controller
	// (TCPIP::host::gpibN,addr::INSTR).
	GPIBResource
)

// Resource is a parsed VISA-style resource string.
type Resource struct {
	Kind ResourceKind
	Host string

	// Port is the TCP port for SocketResource; for GPIBResource it is the
	// controller's command port.
	Port int

	// GPIBBoard and GPIBAddress are only meaningful for GPIBResource.
	GPIBBoard   int
	GPIBAddress int
}

// ParseResource parses a VISA-style resource string. Two forms are
// supported:
//
//	TCPIP::<host>::<port>::SOCKET
//	TCPIP::<host>::gpib<board>,<address>::INSTR
func ParseResource(resource string) (*Resource, error) {
	parts := strings.Split(resource, "::")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: %s (expected 4 ::-separated fields)", ErrBadResource, resource)
	}

	scheme := strings.ToUpper(parts[0])
	if scheme != "TCPIP" && scheme != "TCPIP0" {
		return nil, fmt.Errorf("%w: unsupported interface %q", ErrBadResource, parts[0])
	}

	host := parts[1]
	if host == "" {
		return nil, fmt.Errorf("%w: empty host in %s", ErrBadResource, resource)
	}

	switch strings.ToUpper(parts[3]) {
	case "SOCKET":
		port, err := strconv.Atoi(parts[2])
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("%w: bad port %q", ErrBadResource, parts[2])
		}
		return &Resource{Kind: SocketResource, Host: host, Port: port}, nil
	case "INSTR":
		board, addr, err := parseGPIBField(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadResource, err)
		}
		return &Resource{
			Kind:        GPIBResource,
			Host:        host,
			Port:        defaultGPIBPort,
			GPIBBoard:   board,
			GPIBAddress: addr,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported resource class %q", ErrBadResource, parts[3])
	}
}

// parseGPIBField parses the "gpib<board>,<address>" field of an INSTR
// resource.
func parseGPIBField(field string) (board int, addr int, err error) {
	lowered := strings.ToLower(field)
	if !strings.HasPrefix(lowered, "gpib") {
		return 0, 0, fmt.Errorf("bad GPIB field %q", field)
	}

	spec := strings.TrimPrefix(lowered, "gpib")
	boardStr, addrStr, found := strings.Cut(spec, ",")
	if !found {
		return 0, 0, fmt.Errorf("bad GPIB field %q (expected gpib<board>,<address>)", field)
	}

	board, err = strconv.Atoi(boardStr)
	if err != nil || board < 0 {
		return 0, 0, fmt.Errorf("bad GPIB board in %q", field)
	}

	addr, err = strconv.Atoi(addrStr)
	if err != nil || addr < 0 || addr > 30 {
		return 0, 0, fmt.Errorf("bad GPIB address in %q (must be 0-30)", field)
	}

	return board, addr, nil
}

// Addr returns the TCP dial address for the resource.
func (r *Resource) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// GPIBResourceString builds the INSTR resource string for an instrument
// behind a GPIB-LAN controller.
func GPIBResourceString(host string, board int, address int) string {
	return fmt.Sprintf("TCPIP::%s::gpib%d,%d::INSTR", host, board, address)
}
