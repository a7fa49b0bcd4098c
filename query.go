package cqrskit

// Query is the marker interface implemented by every query type dispatched
// through a QueryBus. As with Command, concrete query structs implement it
// by embedding BaseQuery and are dispatched by pointer.
type Query interface {
	queryMeta() *BaseQuery
}

// BaseQuery carries the fields every query shares: a fresh id used for
// logging/tracing. The declared response type of a query is not carried at
// runtime; it is fixed at registration time by the generic parameters of
// RegisterQueryHandler.
type BaseQuery struct {
	QueryID ID
}

func (q *BaseQuery) queryMeta() *BaseQuery { return q }

// NewBaseQuery builds a BaseQuery with a freshly generated id.
func NewBaseQuery() BaseQuery {
	return BaseQuery{QueryID: NewID()}
}
