package services

// Service is a long-running component started and stopped by the registry.
type Service interface {
	Start() error
	Stop() error
}
