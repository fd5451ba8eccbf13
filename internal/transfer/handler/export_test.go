package handler

// Test-only aliases so external tests can decode handler responses.
type (
	SessionResponse = sessionResponse
	ClaimResponse   = claimResponse
)
