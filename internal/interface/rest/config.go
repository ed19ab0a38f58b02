package restservice

import (
	"fmt"
	"net"
)

type Config struct {
	Port                  uint32
	OtelCollectorEndpoint string
}

func (c Config) Validate() error {
	lis, err := net.Listen("tcp", c.address())
	if err != nil {
		return fmt.Errorf("invalid port: %s", err)
	}
	// nolint:all
	defer lis.Close()

	return nil
}

func (c Config) address() string {
	return fmt.Sprintf(":%d", c.Port)
}
