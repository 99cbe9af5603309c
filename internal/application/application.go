package application

import "context"

// UseCase is one application operation. Business rejections are part of R; the error is
// reserved for invalid input and infrastructure faults.
type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}
