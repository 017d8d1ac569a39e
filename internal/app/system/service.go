package system

import "context"

// Service is a long-lived engine component under Manager control. Start
// must return once the component is ready; background work belongs in
// goroutines the component owns and winds down in Stop.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
