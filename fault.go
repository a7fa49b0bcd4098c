package cqrskit

import "fmt"

// ConcurrencyFault indicates a save_events call observed a version other
// than the one it expected: some other writer persisted events for this
// aggregate in between load and save. Callers should retry the whole
// load-mutate-save cycle (see the concurrency-retry middleware).
type ConcurrencyFault struct {
	AggregateID     ID
	ExpectedVersion int64
	ActualVersion   int64
}

// Error returns the ConcurrencyFault formatted as a string to meet the error interface.
func (f ConcurrencyFault) Error() string {
	return fmt.Sprintf(
		"cqrskit: concurrency fault on aggregate %v: expected version %d, store is at %d",
		f.AggregateID, f.ExpectedVersion, f.ActualVersion,
	)
}

// NewConcurrencyFault creates an error from the specified fault details.
func NewConcurrencyFault(aggregateID ID, expectedVersion, actualVersion int64) error {
	return ConcurrencyFault{
		AggregateID:     aggregateID,
		ExpectedVersion: expectedVersion,
		ActualVersion:   actualVersion,
	}
}

// IsConcurrencyFault determines if the specified error is (or wraps) a ConcurrencyFault.
func IsConcurrencyFault(err error) (ConcurrencyFault, bool) {
	for err != nil {
		if fault, ok := err.(ConcurrencyFault); ok {
			return fault, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return ConcurrencyFault{}, false
}

// DomainFault represents an error that has arisen during a command that
// indicates the command is invalid within the domain. This can be any
// application-relevant incident (i.e. attempting to overdraw a bank account),
// as distinct from an infrastructure-level ConcurrencyFault.
type DomainFault struct {
	// AggregateID that had the fault
	AggregateID ID

	// FaultCode for the domain fault
	FaultCode string
}

// Error returns the DomainFault formatted as a string to meet the error interface.
func (f DomainFault) Error() string {
	return fmt.Sprintf("cqrskit: domain fault %q on aggregate %v", f.FaultCode, f.AggregateID)
}

// NewDomainFault creates an error from the specified fault code.
func NewDomainFault(aggregateID ID, faultCode string) error {
	return DomainFault{
		AggregateID: aggregateID,
		FaultCode:   faultCode,
	}
}

// IsDomainFault determines if the specified error is a DomainFault.
func IsDomainFault(err error) (DomainFault, bool) {
	fault, ok := err.(DomainFault)
	return fault, ok
}

// ErrNoHandler is returned by a Router when no handler is registered for a
// message's type and the router's default behaviour is to raise rather than
// ignore.
type ErrNoHandler struct {
	RouterName  string
	MessageType string
}

// Error implements the error interface.
func (e ErrNoHandler) Error() string {
	return fmt.Sprintf("cqrskit: %s has no handler registered for %s", e.RouterName, e.MessageType)
}

// ErrUpcastCycle is returned by the upcasting pipeline when a chain of
// upcasters does not converge within the configured step bound.
type ErrUpcastCycle struct {
	PayloadType string
	MaxSteps    int
}

// Error implements the error interface.
func (e ErrUpcastCycle) Error() string {
	return fmt.Sprintf(
		"cqrskit: upcasting exceeded %d steps for %s, possible cyclic upcaster chain",
		e.MaxSteps, e.PayloadType,
	)
}

// ErrEndOfStream is returned by a Subscription's Next when the underlying
// stream has been closed and no further events will arrive.
var ErrEndOfStream = fmt.Errorf("cqrskit: subscription reached end of stream")
