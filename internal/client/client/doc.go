// Package client talks to the voice MFA gRPC service.
//
// GRPCClient keeps one connection and the session token returned by Login;
// a unary interceptor attaches the token to every call. Requests and replies
// are google.protobuf.Struct values, with audio encoded as base64.
//
// Status codes map to the sentinel errors in errors.go. A biometric rejection
// comes back as *VoiceRejectedError carrying the rejection kind.
package client
