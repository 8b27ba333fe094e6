package providers

import "github.com/smallbiznis/hostelway/internal/providers/httpx"

// Provider call failures are defined next to the shared HTTP helper and
// re-exported here so callers outside this tree import one package.
var ErrUnavailable = httpx.ErrUnavailable

type RejectedError = httpx.RejectedError
