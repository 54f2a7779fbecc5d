package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the session
// token on inbound requests.
const AccessTokenHeaderName = "access_token"

// Identity policy shared by validation and the credential store.
const (
	UsernameMinLength = 3
	UsernameMaxLength = 50
	PINMinLength      = 4
	PINMaxLength      = 12

	// EnrollmentSamples is the number of voice samples averaged into a
	// reference voiceprint.
	EnrollmentSamples = 3
)
