package service_interface

import (
	"github.com/pco-network/pco/internal/config"
	restservice "github.com/pco-network/pco/internal/interface/rest"
)

type Service interface {
	Start() error
	Stop()
}

func NewService(svcConfig restservice.Config, appConfig *config.Config) (Service, error) {
	svc, err := restservice.NewService(svcConfig, appConfig)
	if err != nil {
		return nil, err
	}
	return svc, nil
}
