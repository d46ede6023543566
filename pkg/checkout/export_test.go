package checkout

var (
	NormalizeStripeEvent = normalizeStripeEvent
	NormalizePaddleEvent = normalizePaddleEvent
)
