package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// AuthorizationHeaderName carries "Bearer <token>" and takes precedence over
// AccessTokenHeaderName when both are present.
const AuthorizationHeaderName = "authorization"
