package constants

// Static route constants
const (
	PublicRoute  = "/"
	SuccessRoute = "/success"
	CancelRoute  = "/cancel"
	WebhookRoute = "/webhook"
	// Placeholder the provider replaces with the checkout session id
	CheckoutSessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"
)
